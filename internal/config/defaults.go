package config

// Default returns the canonical runtime configuration used when no file is
// present.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			URL:            "http://127.0.0.1:8080",
			HealthPath:     "/v1/health",
			TimeoutSeconds: 30,
		},
		Auth: AuthConfig{
			WarnWindowSeconds: 300,
			AutoRefresh:       true,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Guard: GuardConfig{
			IntervalMS: 1000,
		},
		Pending: PendingConfig{
			AutoRetry: false,
		},
		Pipeline: PipelineConfig{
			TranscribeRTF:          0.4,
			ExtractEstimateSeconds: 10,
		},
		Notify: NotifyConfig{
			Enable:  true,
			AppName: "actcue",
		},
		Capture: CaptureConfig{
			Category: "general",
		},
	}
}
