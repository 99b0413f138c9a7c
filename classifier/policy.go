package classifier

import (
	"fmt"
	"os"

	"pennytrack/models"

	"gopkg.in/yaml.v3"
)

// Rule is one row of the markdown table. Reasoning and Timeline may contain
// {cents} and {date} placeholders.
type Rule struct {
	Endings       []string          `yaml:"endings"`
	Probability   float64           `yaml:"probability"`
	AlertLevel    models.AlertLevel `yaml:"alert_level"`
	Confidence    string            `yaml:"confidence"`
	Reasoning     string            `yaml:"reasoning"`
	DaysUntilDrop *int              `yaml:"days_until_drop"`
	Timeline      string            `yaml:"timeline"`
}

// Policy is a versioned markdown calendar keyed by price ending
type Policy struct {
	Version  string `yaml:"version"`
	Rules    []Rule `yaml:"rules"`
	Fallback Rule   `yaml:"fallback"`
}

func days(n int) *int { return &n }

// DefaultPolicy is the 3-week clearance cadence ending in a penny price
func DefaultPolicy() Policy {
	return Policy{
		Version: "2025-12",
		Rules: []Rule{
			{
				Endings:       []string{"02"},
				Probability:   0.95,
				AlertLevel:    models.AlertExtreme,
				Confidence:    "Extreme Alert",
				Reasoning:     "Price ends in .02 - This is a HIDDEN 90% markdown! Extreme alert!",
				DaysUntilDrop: days(7),
				Timeline:      "Penny drop expected within 7-14 days (by {date})",
			},
			{
				Endings:       []string{"03"},
				Probability:   0.90,
				AlertLevel:    models.AlertHigh,
				Confidence:    "High Alert",
				Reasoning:     "Price ends in .03 - High alert! Penny drop likely in 14-21 days",
				DaysUntilDrop: days(14),
				Timeline:      "Penny drop likely in 14-21 days (around {date})",
			},
			{
				Endings:       []string{"06"},
				Probability:   0.75,
				AlertLevel:    models.AlertModerate,
				Confidence:    "Moderate Alert",
				Reasoning:     "Price ends in .06 - Next markdown expected in ~21 days (3 weeks)",
				DaysUntilDrop: days(21),
				Timeline:      "Next markdown expected in ~21 days (around {date})",
			},
			{
				Endings:     []string{"00", "99"},
				Probability: 0.10,
				AlertLevel:  models.AlertLow,
				Confidence:  "Low",
				Reasoning:   "Price ends in .{cents} - Typical of regular pricing, not in clearance cycle",
				Timeline:    "Not currently in clearance cycle",
			},
		},
		Fallback: Rule{
			Probability: 0.30,
			AlertLevel:  models.AlertLow,
			Confidence:  "Unclear",
			Reasoning:   "Price ends in .{cents} - Unclear pattern, may or may not be in clearance cycle",
			Timeline:    "Pattern unclear - monitor for changes",
		},
	}
}

// LoadPolicy reads a policy from a YAML file and validates it
func LoadPolicy(path string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read markdown policy: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("parse markdown policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that every ending maps to exactly one well-formed rule
func (p Policy) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("markdown policy has no version")
	}

	seen := make(map[string]bool)
	for i, r := range p.Rules {
		if len(r.Endings) == 0 {
			return fmt.Errorf("rule %d has no endings", i)
		}
		for _, e := range r.Endings {
			if len(e) != 2 || e[0] < '0' || e[0] > '9' || e[1] < '0' || e[1] > '9' {
				return fmt.Errorf("rule %d: ending %q is not two digits", i, e)
			}
			if seen[e] {
				return fmt.Errorf("rule %d: ending %q appears twice", i, e)
			}
			seen[e] = true
		}
		if err := r.validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	if err := p.Fallback.validate(); err != nil {
		return fmt.Errorf("fallback: %w", err)
	}
	return nil
}

func (r Rule) validate() error {
	if r.Probability < 0 || r.Probability > 1 {
		return fmt.Errorf("probability %v outside [0,1]", r.Probability)
	}
	if !r.AlertLevel.Valid() {
		return fmt.Errorf("unknown alert level %q", r.AlertLevel)
	}
	if r.DaysUntilDrop != nil && *r.DaysUntilDrop < 0 {
		return fmt.Errorf("negative days_until_drop")
	}
	return nil
}

// lookup returns the rule for a two-digit ending
func (p Policy) lookup(ending string) Rule {
	for _, r := range p.Rules {
		for _, e := range r.Endings {
			if e == ending {
				return r
			}
		}
	}
	return p.Fallback
}
