package cache

import (
	"errors"
	"time"

	"pennytrack/logger"
)

const cooldownPrefix = "pennytrack:cooldown:"

// Cooldown pauses scraping of a host after it served a bot wall. The pause
// lives in the cache so it survives restarts when memcached backs it.
type Cooldown struct {
	cache CacheService
	ttl   time.Duration
	log   *logger.Logger
}

// NewCooldown builds a cooldown; a zero ttl disables it
func NewCooldown(c CacheService, ttl time.Duration) *Cooldown {
	return &Cooldown{cache: c, ttl: ttl, log: logger.ForComponent("cooldown")}
}

// Trip starts a pause for host, recording reason
func (c *Cooldown) Trip(host, reason string) {
	if c == nil || c.cache == nil || c.ttl <= 0 {
		return
	}
	if err := c.cache.Set(cooldownPrefix+host, []byte(reason), c.ttl); err != nil {
		c.log.Warn().Err(err).Str("host", host).Msg("Failed to record cooldown")
		return
	}
	c.log.Warn().Str("host", host).Dur("ttl", c.ttl).Str("reason", reason).Msg("Host cooling down")
}

// Active reports whether host is paused and why. Cache errors count as not paused.
func (c *Cooldown) Active(host string) (bool, string) {
	if c == nil || c.cache == nil || c.ttl <= 0 {
		return false, ""
	}
	v, err := c.cache.Get(cooldownPrefix + host)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.Debug().Err(err).Str("host", host).Msg("Cooldown lookup failed")
		}
		return false, ""
	}
	return true, string(v)
}

// Clear lifts the pause for host
func (c *Cooldown) Clear(host string) error {
	if c == nil || c.cache == nil {
		return nil
	}
	return c.cache.Delete(cooldownPrefix + host)
}
