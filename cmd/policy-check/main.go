// Package main provides a CLI tool for validating abuse policy files before
// they are deployed. It merges the file over the built-in defaults exactly the
// way the server does at startup, so a policy that passes here loads there.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"bulwark/internal/ratelimit/config"
	"bulwark/internal/ratelimit/models"
)

type policyOutput struct {
	Action            string  `json:"action"`
	MaxAttempts       int     `json:"max_attempts"`
	Window            string  `json:"window"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	BackoffCap        string  `json:"backoff_cap"`
	CaptchaThreshold  int     `json:"captcha_threshold,omitempty"`
	LockoutThreshold  int     `json:"lockout_threshold,omitempty"`
	LockoutDuration   string  `json:"lockout_duration,omitempty"`
	Layered           bool    `json:"layered,omitempty"`
}

func main() {
	var (
		file   = flag.String("file", "", "policy YAML to validate (empty prints the built-in defaults)")
		action = flag.String("action", "", "print only this action's effective policy")
		asJSON = flag.Bool("json", false, "output as JSON")
	)
	flag.Parse()

	cfg, err := load(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "policy-check: %v\n", err)
		os.Exit(1)
	}

	actions := cfg.Actions()
	if *action != "" {
		actions = []models.Action{models.Action(*action)}
		if _, ok := cfg.Policies[models.Action(*action)]; !ok {
			fmt.Fprintf(os.Stderr, "note: action %q is not configured; showing the %q fallback\n", *action, models.ActionAPI)
		}
	}

	rows := make([]policyOutput, 0, len(actions))
	for _, a := range actions {
		rows = append(rows, toOutput(a, cfg.PolicyFor(a)))
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			fmt.Fprintf(os.Stderr, "policy-check: encode: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *file != "" {
		fmt.Printf("%s: OK (%d actions)\n\n", *file, len(cfg.Policies))
	}
	for _, row := range rows {
		printPolicy(row)
	}
}

func load(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.LoadFile(path)
}

func toOutput(action models.Action, p config.ActionPolicy) policyOutput {
	out := policyOutput{
		Action:            string(action),
		MaxAttempts:       p.MaxAttempts,
		Window:            p.Window.String(),
		BackoffMultiplier: p.BackoffMultiplier,
		BackoffCap:        p.BackoffCap.String(),
		CaptchaThreshold:  p.CaptchaThreshold,
		LockoutThreshold:  p.LockoutThreshold,
		Layered:           p.Layered,
	}
	if p.LockoutThreshold > 0 {
		out.LockoutDuration = p.LockoutDuration.String()
	}
	return out
}

func printPolicy(p policyOutput) {
	fmt.Printf("%s:\n", p.Action)
	fmt.Printf("  max_attempts:       %d per %s\n", p.MaxAttempts, p.Window)
	fmt.Printf("  backoff:            x%g capped at %s\n", p.BackoffMultiplier, p.BackoffCap)
	if p.CaptchaThreshold > 0 {
		fmt.Printf("  captcha_threshold:  %d\n", p.CaptchaThreshold)
	}
	if p.LockoutThreshold > 0 {
		fmt.Printf("  lockout:            %d attempts -> %s\n", p.LockoutThreshold, p.LockoutDuration)
	}
	if p.Layered {
		fmt.Printf("  layered:            ip + identifier buckets\n")
	}
	fmt.Println()
}
