package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"bulwark/internal/ratelimit/models"
)

// ActionPolicy defines abuse thresholds for one action.
type ActionPolicy struct {
	MaxAttempts       int           // attempts allowed per window
	Window            time.Duration // fixed window length
	BackoffMultiplier float64       // cooldown growth factor per violation
	BackoffCap        time.Duration // ceiling for extended cooldowns
	CaptchaThreshold  int           // attempts after which the captcha signal raises; 0 disables
	LockoutThreshold  int           // identifier-bucket attempts that trigger a lock; 0 disables
	LockoutDuration   time.Duration // how long a triggered lock holds
	Layered           bool          // check both the IP bucket and the identifier bucket
}

// Config holds the per-action policy table.
type Config struct {
	Policies map[models.Action]ActionPolicy
}

// DefaultConfig returns the built-in policy table. Values follow the
// protection tiers of the actions: credential guessing (login) gets the
// tightest window plus lockout, enumeration surfaces (register, reset)
// get captcha pressure, generic API traffic gets volume limits only.
func DefaultConfig() *Config {
	return &Config{
		Policies: map[models.Action]ActionPolicy{
			models.ActionLogin: {
				MaxAttempts:       5,
				Window:            5 * time.Minute,
				BackoffMultiplier: 2,
				BackoffCap:        2 * time.Hour,
				CaptchaThreshold:  3,
				LockoutThreshold:  10,
				LockoutDuration:   15 * time.Minute,
				Layered:           true,
			},
			models.ActionRegister: {
				MaxAttempts:       3,
				Window:            time.Hour,
				BackoffMultiplier: 2,
				BackoffCap:        2 * time.Hour,
				CaptchaThreshold:  2,
			},
			models.ActionPasswordReset: {
				MaxAttempts:       3,
				Window:            15 * time.Minute,
				BackoffMultiplier: 2,
				BackoffCap:        2 * time.Hour,
				CaptchaThreshold:  2,
			},
			models.ActionEmailVerification: {
				MaxAttempts:       5,
				Window:            10 * time.Minute,
				BackoffMultiplier: 2,
				BackoffCap:        2 * time.Hour,
			},
			models.ActionAPI: {
				MaxAttempts:       100,
				Window:            time.Minute,
				BackoffMultiplier: 2,
				BackoffCap:        2 * time.Hour,
			},
		},
	}
}

// PolicyFor returns the policy for an action, falling back to the default
// "api" policy for unknown actions. A typo'd action name must degrade to
// generic protection, never to none.
func (c *Config) PolicyFor(action models.Action) ActionPolicy {
	if policy, ok := c.Policies[action]; ok {
		return policy
	}
	return c.Policies[models.ActionAPI]
}

// Actions returns the configured action names in stable order.
func (c *Config) Actions() []models.Action {
	actions := make([]models.Action, 0, len(c.Policies))
	for action := range c.Policies {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// Validate checks every policy for internal consistency.
func (c *Config) Validate() error {
	if _, ok := c.Policies[models.ActionAPI]; !ok {
		return fmt.Errorf("policy table must define the %q fallback action", models.ActionAPI)
	}
	for action, policy := range c.Policies {
		if err := validatePolicy(policy); err != nil {
			return fmt.Errorf("action %q: %w", action, err)
		}
	}
	return nil
}

func validatePolicy(p ActionPolicy) error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", p.Window)
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1, got %g", p.BackoffMultiplier)
	}
	if p.BackoffCap < p.Window {
		return fmt.Errorf("backoff_cap %s must not undercut the window %s", p.BackoffCap, p.Window)
	}
	if p.CaptchaThreshold < 0 {
		return fmt.Errorf("captcha_threshold cannot be negative, got %d", p.CaptchaThreshold)
	}
	if p.LockoutThreshold < 0 {
		return fmt.Errorf("lockout_threshold cannot be negative, got %d", p.LockoutThreshold)
	}
	if p.LockoutThreshold > 0 && p.LockoutDuration <= 0 {
		return fmt.Errorf("lockout_threshold %d requires a positive lockout_duration", p.LockoutThreshold)
	}
	return nil
}

// actionOverride mirrors one YAML policy block. Pointer fields distinguish
// "absent, keep the default" from explicit zeroes (captcha_threshold: 0
// legitimately disables the signal). Durations are Go duration strings.
type actionOverride struct {
	MaxAttempts       *int     `yaml:"max_attempts"`
	Window            *string  `yaml:"window"`
	BackoffMultiplier *float64 `yaml:"backoff_multiplier"`
	BackoffCap        *string  `yaml:"backoff_cap"`
	CaptchaThreshold  *int     `yaml:"captcha_threshold"`
	LockoutThreshold  *int     `yaml:"lockout_threshold"`
	LockoutDuration   *string  `yaml:"lockout_duration"`
	Layered           *bool    `yaml:"layered"`
}

type policyFile struct {
	Actions map[string]actionOverride `yaml:"actions"`
}

// LoadFile merges YAML policy overrides over the built-in defaults.
// Overridden actions start from their default (or the api default for
// caller-defined actions) and change only the keys the file names.
func LoadFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(raw)
}

// Parse builds a Config from raw YAML, merging over DefaultConfig.
func Parse(raw []byte) (*Config, error) {
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}

	cfg := DefaultConfig()
	for name, override := range file.Actions {
		if name == "" {
			return nil, fmt.Errorf("policy file contains an empty action name")
		}
		action := models.Action(name)
		policy := cfg.PolicyFor(action)
		if err := applyOverride(&policy, override); err != nil {
			return nil, fmt.Errorf("action %q: %w", name, err)
		}
		cfg.Policies[action] = policy
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverride(policy *ActionPolicy, o actionOverride) error {
	if o.MaxAttempts != nil {
		policy.MaxAttempts = *o.MaxAttempts
	}
	if o.Window != nil {
		window, err := time.ParseDuration(*o.Window)
		if err != nil {
			return fmt.Errorf("invalid window: %w", err)
		}
		policy.Window = window
	}
	if o.BackoffMultiplier != nil {
		policy.BackoffMultiplier = *o.BackoffMultiplier
	}
	if o.BackoffCap != nil {
		backoffCap, err := time.ParseDuration(*o.BackoffCap)
		if err != nil {
			return fmt.Errorf("invalid backoff_cap: %w", err)
		}
		policy.BackoffCap = backoffCap
	}
	if o.CaptchaThreshold != nil {
		policy.CaptchaThreshold = *o.CaptchaThreshold
	}
	if o.LockoutThreshold != nil {
		policy.LockoutThreshold = *o.LockoutThreshold
	}
	if o.LockoutDuration != nil {
		duration, err := time.ParseDuration(*o.LockoutDuration)
		if err != nil {
			return fmt.Errorf("invalid lockout_duration: %w", err)
		}
		policy.LockoutDuration = duration
	}
	if o.Layered != nil {
		policy.Layered = *o.Layered
	}
	return nil
}
