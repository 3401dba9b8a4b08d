package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validElevation = map[string]bool{
	"auto": true,
	"doas": true,
	"sudo": true,
	"none": true,
}

var knownSteps = map[string]bool{
	StepUpgrade:  true,
	StepPatches:  true,
	StepPackages: true,
}

// ValidationResult separates problems that must stop the run from
// problems that were corrected in place.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// NormalizeStep returns the canonical spelling of a step name.
func NormalizeStep(step string) string {
	return strings.ToLower(strings.TrimSpace(step))
}

// ValidateStep reports an error for a step name no run can execute.
func ValidateStep(step string) error {
	if !knownSteps[NormalizeStep(step)] {
		return fmt.Errorf("unknown step %q (use %s, %s, %s)", step, StepUpgrade, StepPatches, StepPackages)
	}
	return nil
}

// ValidateTiered checks the config. Out-of-range numbers and unknown log
// settings are clamped or reset and reported as warnings; values the run
// cannot proceed with are fatal. Warnings are also logged.
func (c *Config) ValidateTiered() ValidationResult {
	var result ValidationResult

	if c.DefaultMirror == "" {
		c.DefaultMirror = DefaultMirror
	} else if u, err := url.Parse(c.DefaultMirror); err != nil {
		result.Fatals = append(result.Fatals, fmt.Errorf("default_mirror %q is not a valid URL: %w", c.DefaultMirror, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		result.Fatals = append(result.Fatals, fmt.Errorf("default_mirror scheme must be http or https, got %q", u.Scheme))
	}

	c.Elevation = strings.ToLower(strings.TrimSpace(c.Elevation))
	if c.Elevation == "" {
		c.Elevation = "auto"
	} else if !validElevation[c.Elevation] {
		result.Fatals = append(result.Fatals, fmt.Errorf("elevation %q is not valid (use auto, doas, sudo, none)", c.Elevation))
	}

	for i, step := range c.EnabledSteps {
		if err := ValidateStep(step); err != nil {
			result.Fatals = append(result.Fatals, fmt.Errorf("enabled_steps: %w", err))
			continue
		}
		c.EnabledSteps[i] = NormalizeStep(step)
	}

	if c.InstallURLPath == "" {
		c.InstallURLPath = DefaultInstallURLPath
	}

	if c.ProbeTimeoutSeconds < 1 {
		result.Warnings = append(result.Warnings, fmt.Errorf("probe_timeout_seconds %d is below minimum 1, clamping", c.ProbeTimeoutSeconds))
		c.ProbeTimeoutSeconds = 1
	} else if c.ProbeTimeoutSeconds > 300 {
		result.Warnings = append(result.Warnings, fmt.Errorf("probe_timeout_seconds %d exceeds maximum 300, clamping", c.ProbeTimeoutSeconds))
		c.ProbeTimeoutSeconds = 300
	}

	// sysupgrade fetches every set before returning, so allow a long ceiling.
	if c.CommandTimeoutSeconds < 60 {
		result.Warnings = append(result.Warnings, fmt.Errorf("command_timeout_seconds %d is below minimum 60, clamping", c.CommandTimeoutSeconds))
		c.CommandTimeoutSeconds = 60
	} else if c.CommandTimeoutSeconds > 14400 {
		result.Warnings = append(result.Warnings, fmt.Errorf("command_timeout_seconds %d exceeds maximum 14400, clamping", c.CommandTimeoutSeconds))
		c.CommandTimeoutSeconds = 14400
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), using warn", c.LogLevel))
		c.LogLevel = "warn"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		result.Warnings = append(result.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), using text", c.LogFormat))
		c.LogFormat = "text"
	}

	for _, err := range result.Warnings {
		slog.Warn("config validation", "error", err)
	}

	return result
}
