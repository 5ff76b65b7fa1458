// Package config resolves, parses, validates, and defaults actcue
// configuration.
package config

// Config is the fully materialized runtime configuration used by actcue.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Auth     AuthConfig     `yaml:"auth"`
	Audio    AudioConfig    `yaml:"audio"`
	Guard    GuardConfig    `yaml:"guard"`
	Pending  PendingConfig  `yaml:"pending"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Notify   NotifyConfig   `yaml:"notify"`
	Capture  CaptureConfig  `yaml:"capture"`
}

// BackendConfig locates the capture API.
type BackendConfig struct {
	URL            string `yaml:"url"`
	HealthPath     string `yaml:"health_path"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// AuthConfig controls the bearer token file and expiry warning window.
type AuthConfig struct {
	TokenPath         string `yaml:"token_path"`
	WarnWindowSeconds int    `yaml:"warn_window_seconds"`
	// AutoRefresh attempts one token refresh when the warning window is
	// crossed mid-recording. Off, the crossing is advisory only.
	AutoRefresh bool `yaml:"auto_refresh"`
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
}

// GuardConfig controls the recording guard poll interval.
type GuardConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

// PendingConfig controls the durable capture queue.
type PendingConfig struct {
	DBPath    string `yaml:"db_path"`
	AutoRetry bool   `yaml:"auto_retry"`
}

// PipelineConfig tunes processing-stage time estimates.
type PipelineConfig struct {
	// TranscribeRTF estimates transcription time as a fraction of audio
	// duration.
	TranscribeRTF float64 `yaml:"transcribe_rtf"`
	// ExtractEstimateSeconds is the assumed extraction stage duration.
	ExtractEstimateSeconds int `yaml:"extract_estimate_seconds"`
}

// NotifyConfig controls desktop notifications.
type NotifyConfig struct {
	Enable  bool   `yaml:"enable"`
	AppName string `yaml:"app_name"`
}

// CaptureConfig holds default metadata attached to new captures.
type CaptureConfig struct {
	Title    string `yaml:"title"`
	Category string `yaml:"category"`
	Share    bool   `yaml:"share"`
}

// Warning is a non-fatal configuration finding surfaced to the user.
type Warning struct {
	Message string
}
