// Package doctor runs runtime readiness diagnostics for config, audio, the
// backend, the pending queue, and auth state.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/actcue/actcue/internal/audio"
	"github.com/actcue/actcue/internal/auth"
	"github.com/actcue/actcue/internal/config"
	"github.com/actcue/actcue/internal/pending"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// HealthProber probes backend readiness.
type HealthProber interface {
	Health(ctx context.Context) error
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, prober HealthProber) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})
	for _, warning := range cfg.Warnings {
		checks = append(checks, Check{
			Name:    "config.warning",
			Pass:    true,
			Message: warning.Message,
		})
	}

	checks = append(checks, checkRuntimeDir())
	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	checks = append(checks, checkBackendHealth(ctx, prober))
	checks = append(checks, checkPendingStore(cfg.Config))
	checks = append(checks, checkToken(cfg.Config))

	return Report{Checks: checks}
}

// checkRuntimeDir verifies the control socket has a home.
func checkRuntimeDir() Check {
	if strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")) == "" {
		return Check{Name: "runtime.dir", Pass: false, Message: "XDG_RUNTIME_DIR is not set; control socket unavailable"}
	}
	return Check{Name: "runtime.dir", Pass: true, Message: "XDG_RUNTIME_DIR is set"}
}

// checkAudioSelection runs live device selection to surface selection and
// fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkBackendHealth probes the configured backend readiness endpoint.
func checkBackendHealth(ctx context.Context, prober HealthProber) Check {
	if prober == nil {
		return Check{Name: "backend.ready", Pass: false, Message: "no backend client configured"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := prober.Health(probeCtx); err != nil {
		return Check{Name: "backend.ready", Pass: false, Message: err.Error()}
	}
	return Check{Name: "backend.ready", Pass: true, Message: "backend is reachable"}
}

// checkPendingStore opens the durable queue and reports its backlog.
func checkPendingStore(cfg config.Config) Check {
	path := cfg.Pending.DBPath
	if path == "" {
		resolved, err := pending.DefaultDBPath()
		if err != nil {
			return Check{Name: "pending.store", Pass: false, Message: err.Error()}
		}
		path = resolved
	}

	store, err := pending.Open(path)
	if err != nil {
		return Check{Name: "pending.store", Pass: false, Message: err.Error()}
	}
	defer store.Close()

	records, err := store.ListPending()
	if err != nil {
		return Check{Name: "pending.store", Pass: false, Message: err.Error()}
	}
	return Check{Name: "pending.store", Pass: true, Message: fmt.Sprintf("open, %d pending capture(s)", len(records))}
}

// checkToken reports auth token presence and expiry without failing doctor
// when the user simply has not signed in.
func checkToken(cfg config.Config) Check {
	path := cfg.Auth.TokenPath
	if path == "" {
		resolved, err := config.DefaultTokenPath()
		if err != nil {
			return Check{Name: "auth.token", Pass: false, Message: err.Error()}
		}
		path = resolved
	}

	session, err := auth.LoadFileSession(path, time.Duration(cfg.Auth.WarnWindowSeconds)*time.Second, nil)
	if err != nil {
		if errors.Is(err, auth.ErrNoToken) {
			return Check{Name: "auth.token", Pass: true, Message: "no token on disk; captures will queue locally"}
		}
		return Check{Name: "auth.token", Pass: false, Message: err.Error()}
	}

	if session.IsExpired() {
		return Check{Name: "auth.token", Pass: true, Message: "token expired; refresh before uploading"}
	}
	return Check{Name: "auth.token", Pass: true, Message: fmt.Sprintf("token valid until %s", session.ExpiresAt().Format(time.RFC3339))}
}
