package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Backend.URL) == "" {
		return nil, fmt.Errorf("backend.url must not be empty")
	}
	if !strings.HasPrefix(cfg.Backend.URL, "http://") && !strings.HasPrefix(cfg.Backend.URL, "https://") {
		return nil, fmt.Errorf("backend.url must start with http:// or https://")
	}
	if strings.TrimSpace(cfg.Backend.HealthPath) == "" {
		return nil, fmt.Errorf("backend.health_path must not be empty")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.Backend.HealthPath), "/") {
		return nil, fmt.Errorf("backend.health_path must start with '/'")
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("backend.timeout_seconds must be > 0")
	}
	if cfg.Auth.WarnWindowSeconds < 0 {
		return nil, fmt.Errorf("auth.warn_window_seconds must be >= 0")
	}
	if strings.TrimSpace(cfg.Audio.Input) == "" {
		return nil, fmt.Errorf("audio.input must not be empty")
	}
	if cfg.Guard.IntervalMS <= 0 {
		return nil, fmt.Errorf("guard.interval_ms must be > 0")
	}
	if cfg.Guard.IntervalMS > 10000 {
		warnings = append(warnings, Warning{
			Message: fmt.Sprintf("guard.interval_ms=%d is coarse; limit overruns up to that long go undetected", cfg.Guard.IntervalMS),
		})
	}
	if cfg.Pipeline.TranscribeRTF <= 0 {
		return nil, fmt.Errorf("pipeline.transcribe_rtf must be > 0")
	}
	if cfg.Pipeline.ExtractEstimateSeconds <= 0 {
		return nil, fmt.Errorf("pipeline.extract_estimate_seconds must be > 0")
	}
	if cfg.Notify.Enable && strings.TrimSpace(cfg.Notify.AppName) == "" {
		return nil, fmt.Errorf("notify.app_name must not be empty when notify.enable=true")
	}

	return warnings, nil
}
