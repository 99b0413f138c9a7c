package scraper

import (
	"context"
	"regexp"
	"strings"
)

// Block kinds reported by BotDetector
const (
	BlockNone      = ""
	BlockCaptcha   = "captcha"
	BlockBotWall   = "bot_wall"
	BlockHTTPError = "http_error"
	BlockDelisted  = "delisted"
)

// BlockSignal describes why a page yielded no price
type BlockSignal struct {
	Blocked bool
	Kind    string
	Score   float64
	Reasons []string
}

// Reason joins the matched patterns for logging
func (b BlockSignal) Reason() string {
	return strings.Join(b.Reasons, "; ")
}

type weightedPattern struct {
	re     *regexp.Regexp
	weight float64
	kind   string
}

// BotDetector recognises anti-automation interstitials and retailer error
// pages from a page's visible text and title
type BotDetector struct {
	patterns []weightedPattern
	delisted []*regexp.Regexp
}

// NewBotDetector creates a detector with the retailer's known block texts
func NewBotDetector() *BotDetector {
	p := func(expr string, weight float64, kind string) weightedPattern {
		return weightedPattern{re: regexp.MustCompile(`(?i)` + expr), weight: weight, kind: kind}
	}
	return &BotDetector{
		patterns: []weightedPattern{
			p(`access denied`, 0.6, BlockBotWall),
			p(`you don't have permission to access`, 0.6, BlockBotWall),
			p(`reference #\d+\.[0-9a-f]+`, 0.4, BlockBotWall),
			p(`please verify you are (a )?human`, 0.6, BlockCaptcha),
			p(`press (&|and) hold`, 0.6, BlockCaptcha),
			p(`\b(re|h)?captcha\b`, 0.5, BlockCaptcha),
			p(`checking your browser`, 0.5, BlockBotWall),
			p(`unusual (traffic|activity)`, 0.4, BlockBotWall),
			p(`too many requests`, 0.5, BlockHTTPError),
			p(`\b(403 forbidden|429|503 service unavailable)\b`, 0.4, BlockHTTPError),
			p(`oops!+ something went wrong`, 0.4, BlockHTTPError),
		},
		delisted: []*regexp.Regexp{
			regexp.MustCompile(`(?i)product you are trying to view is not currently available`),
			regexp.MustCompile(`(?i)we couldn't find (that|this) page`),
		},
	}
}

// Detect scores text and title; a score above 0.3 counts as blocked
func (bd *BotDetector) Detect(text, title string) BlockSignal {
	content := strings.ToLower(text + " " + title)

	for _, re := range bd.delisted {
		if re.MatchString(content) {
			return BlockSignal{Blocked: false, Kind: BlockDelisted, Score: 0, Reasons: []string{"delisted: " + re.String()}}
		}
	}

	var sig BlockSignal
	kindScore := map[string]float64{}
	for _, wp := range bd.patterns {
		if wp.re.MatchString(content) {
			sig.Score += wp.weight
			kindScore[wp.kind] += wp.weight
			sig.Reasons = append(sig.Reasons, wp.kind+": "+wp.re.String())
		}
	}
	if sig.Score == 0 {
		return sig
	}

	// short pages carrying any indicator are interstitials
	if len(strings.TrimSpace(text)) < 1500 {
		sig.Score += 0.2
		sig.Reasons = append(sig.Reasons, "short page with block indicators")
	}
	if sig.Score > 1 {
		sig.Score = 1
	}

	best := 0.0
	for _, kind := range []string{BlockCaptcha, BlockBotWall, BlockHTTPError} {
		if kindScore[kind] > best {
			best, sig.Kind = kindScore[kind], kind
		}
	}
	sig.Blocked = sig.Score > 0.3
	if !sig.Blocked {
		sig.Kind = BlockNone
	}
	return sig
}

// Inspect reads the page's visible text and title and runs Detect
func (bd *BotDetector) Inspect(ctx context.Context, page PageDriver) BlockSignal {
	text, err := page.Evaluate(ctx, ScriptInnerText)
	if err != nil {
		return BlockSignal{}
	}
	title, _ := page.Evaluate(ctx, ScriptTitle)
	return bd.Detect(text, title)
}
