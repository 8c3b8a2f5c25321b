// Package costctl accumulates a session's running USD cost estimate from
// voice/LLM usage and fires soft- and hard-limit callbacks exactly once per
// session, no matter how many concurrent callers cross the threshold at the
// same time.
package costctl

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Usage reports one exchange's token/audio consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
	AudioSeconds float64
}

// Pricing holds the per-unit rates used to convert [Usage] into a dollar
// estimate.
type Pricing struct {
	InputPer1KTokensUSD  float64
	OutputPer1KTokensUSD float64
	AudioPerSecondUSD    float64
}

// cost converts one usage sample into a USD delta.
func (p Pricing) cost(u Usage) float64 {
	return float64(u.InputTokens)/1000*p.InputPer1KTokensUSD +
		float64(u.OutputTokens)/1000*p.OutputPer1KTokensUSD +
		u.AudioSeconds*p.AudioPerSecondUSD
}

// Config configures a [Controller].
type Config struct {
	// Pricing rates used to price incoming usage.
	Pricing Pricing

	// SoftLimitUSD triggers OnSoftLimit once crossed. Zero disables it.
	SoftLimitUSD float64

	// HardLimitUSD triggers OnHardLimit once crossed. Zero disables it.
	HardLimitUSD float64

	// OnSoftLimit is invoked at most once, the first time the running
	// estimate crosses SoftLimitUSD. May be nil.
	OnSoftLimit func(usdEstimate float64)

	// OnHardLimit is invoked at most once, the first time the running
	// estimate crosses HardLimitUSD. May be nil.
	OnHardLimit func(usdEstimate float64)
}

// Controller accumulates a session's USD estimate and voice-seconds total,
// and fires its configured limit callbacks idempotently. Safe for concurrent
// use.
type Controller struct {
	pricing      Pricing
	softLimit    float64
	hardLimit    float64
	onSoftLimit  func(float64)
	onHardLimit  func(float64)

	mu           sync.Mutex
	usdEstimate  float64
	voiceSeconds float64
	throttled    bool
	fallback     bool
	softFired    bool
	hardFired    bool

	group singleflight.Group
}

// New creates a [Controller] with the given configuration.
func New(cfg Config) *Controller {
	return &Controller{
		pricing:     cfg.Pricing,
		softLimit:   cfg.SoftLimitUSD,
		hardLimit:   cfg.HardLimitUSD,
		onSoftLimit: cfg.OnSoftLimit,
		onHardLimit: cfg.OnHardLimit,
	}
}

// AddUsage updates the running USD estimate and voice-seconds total, firing
// OnSoftLimit/OnHardLimit the first time the estimate crosses the
// corresponding threshold. Concurrent crossings are collapsed via
// singleflight so each callback fires exactly once.
func (c *Controller) AddUsage(u Usage) {
	c.mu.Lock()
	c.usdEstimate += c.pricing.cost(u)
	c.voiceSeconds += u.AudioSeconds
	estimate := c.usdEstimate

	crossedSoft := !c.softFired && c.softLimit > 0 && estimate >= c.softLimit
	crossedHard := !c.hardFired && c.hardLimit > 0 && estimate >= c.hardLimit
	if crossedSoft {
		c.softFired = true
	}
	if crossedHard {
		c.hardFired = true
	}
	c.mu.Unlock()

	if crossedSoft && c.onSoftLimit != nil {
		c.group.Do("soft", func() (any, error) {
			c.onSoftLimit(estimate)
			return nil, nil
		})
	}
	if crossedHard && c.onHardLimit != nil {
		c.group.Do("hard", func() (any, error) {
			c.onHardLimit(estimate)
			return nil, nil
		})
	}
}

// USDEstimate returns the current running cost estimate.
func (c *Controller) USDEstimate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usdEstimate
}

// VoiceSeconds returns the total accumulated audio seconds billed so far.
func (c *Controller) VoiceSeconds() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceSeconds
}

// SoftFired reports whether the soft limit has already been crossed.
func (c *Controller) SoftFired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.softFired
}

// HardFired reports whether the hard limit has already been crossed.
func (c *Controller) HardFired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hardFired
}

// SetFallback records whether the session is currently degraded to
// text-only voice. Set by the orchestrator when the hard limit fires.
func (c *Controller) SetFallback(fallback bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = fallback
}

// Fallback reports the current fallback flag.
func (c *Controller) Fallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallback
}

// SetThrottled records whether the session is currently rate-limited.
func (c *Controller) SetThrottled(throttled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.throttled = throttled
}

// Throttled reports the current throttled flag.
func (c *Controller) Throttled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.throttled
}

// OverHardLimit reports whether the hard limit has fired and therefore
// resume_ai/unfreeze attempts must be blocked until cleared externally.
func (c *Controller) OverHardLimit() bool {
	return c.HardFired()
}
