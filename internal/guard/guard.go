// Package guard watches an active recording for duration and authentication
// limits and forces a stop exactly once when either is violated.
package guard

import (
	"context"
	"log/slog"
	"time"
)

// Reason identifies why the guard forced a stop. The caller renders
// different remediation for each.
type Reason string

const (
	ReasonLimitReached   Reason = "limit-reached"
	ReasonSessionExpired Reason = "session-expired"
)

// Trip is the single forced-stop event emitted by a guard.
type Trip struct {
	Reason Reason
	At     time.Time
}

// NoticeKind classifies advisory guard events that do not stop recording.
type NoticeKind string

const (
	NoticeExpiringSoon  NoticeKind = "expiring-soon"
	NoticeRefreshed     NoticeKind = "refreshed"
	NoticeRefreshFailed NoticeKind = "refresh-failed"
)

// Notice is an advisory event, e.g. a session nearing expiry.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// AuthSession is the authentication state the guard polls.
type AuthSession interface {
	IsExpired() bool
	IsExpiringSoon() bool
	Refresh(ctx context.Context) error
}

// Config wires one guard to its recording session.
type Config struct {
	MaxDuration time.Duration
	Interval    time.Duration
	Duration    func() time.Duration
	Auth        AuthSession
	Logger      *slog.Logger

	// DisableAutoRefresh keeps the warning-window crossing advisory-only:
	// the expiring-soon notice is still emitted but no refresh is attempted.
	DisableAutoRefresh bool
}

// Guard evaluates its conditions on a fixed interval while recording. The
// trip channel delivers at most one event and is closed when the guard
// stops, so the forced stop is idempotent by construction.
type Guard struct {
	cfg     Config
	trips   chan Trip
	notices chan Notice
}

// New constructs a guard. Watch must be called to start evaluation.
func New(cfg Config) *Guard {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Guard{
		cfg:     cfg,
		trips:   make(chan Trip, 1),
		notices: make(chan Notice, 4),
	}
}

// Trips returns the forced-stop channel. It is closed when the guard exits,
// with at most one Trip delivered first.
func (g *Guard) Trips() <-chan Trip {
	return g.trips
}

// Notices returns the advisory event channel.
func (g *Guard) Notices() <-chan Notice {
	return g.notices
}

// Watch runs the evaluation loop until a trip fires or the context is
// cancelled. The owning session cancels the context whenever it leaves the
// recording state so no timer outlives its session.
func (g *Guard) Watch(ctx context.Context) {
	go g.loop(ctx)
}

func (g *Guard) loop(ctx context.Context) {
	defer close(g.trips)

	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	warned := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if g.cfg.Duration != nil && g.cfg.MaxDuration > 0 && g.cfg.Duration() >= g.cfg.MaxDuration {
			g.trip(ReasonLimitReached)
			return
		}

		if g.cfg.Auth == nil {
			continue
		}
		if g.cfg.Auth.IsExpired() {
			g.trip(ReasonSessionExpired)
			return
		}
		if !warned && g.cfg.Auth.IsExpiringSoon() {
			warned = true
			g.notice(Notice{Kind: NoticeExpiringSoon, Message: "session expiring soon"})
			if !g.cfg.DisableAutoRefresh {
				// Refresh off the poll loop so a slow or failing refresh
				// can never delay the hard-expiry check.
				go g.refresh(ctx)
			}
		}
	}
}

// refresh attempts one session refresh and reports the outcome as a notice.
func (g *Guard) refresh(ctx context.Context) {
	if err := g.cfg.Auth.Refresh(ctx); err != nil {
		g.logWarn("session refresh failed", "error", err.Error())
		g.notice(Notice{Kind: NoticeRefreshFailed, Message: err.Error()})
		return
	}
	g.notice(Notice{Kind: NoticeRefreshed, Message: "session refreshed"})
}

// trip delivers the single forced-stop event.
func (g *Guard) trip(reason Reason) {
	g.trips <- Trip{Reason: reason, At: time.Now()}
	g.logWarn("guard forced stop", "reason", string(reason))
}

// notice delivers an advisory event without blocking the poll loop.
func (g *Guard) notice(n Notice) {
	select {
	case g.notices <- n:
	default:
	}
}

func (g *Guard) logWarn(message string, args ...any) {
	if g.cfg.Logger == nil {
		return
	}
	g.cfg.Logger.Warn(message, args...)
}
