// Package session coordinates one capture lifecycle: recording, guard
// enforcement, durable queueing, and the processing pipeline. A single
// controller goroutine arbitrates every state transition.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/actcue/actcue/internal/audio"
	"github.com/actcue/actcue/internal/backend"
	"github.com/actcue/actcue/internal/fsm"
	"github.com/actcue/actcue/internal/guard"
	"github.com/actcue/actcue/internal/ipc"
	"github.com/actcue/actcue/internal/pending"
	"github.com/actcue/actcue/internal/pipeline"
)

type action int

const (
	actionStop action = iota + 1
	actionPause
	actionResume
	actionCancel
)

// ErrSessionExpired marks a capture that was force-stopped because the auth
// session lapsed. Its audio stays in the pending queue.
var ErrSessionExpired = errors.New("session expired during recording")

// Capture is the live microphone handle the controller drives.
type Capture interface {
	Pause() error
	Resume() error
	Stop() (audio.Recording, error)
	Duration() time.Duration
	BytesCaptured() int64
	Device() audio.Device
}

// Recorder starts a capture.
type Recorder interface {
	Start(ctx context.Context) (Capture, error)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context) (Capture, error)

func (f RecorderFunc) Start(ctx context.Context) (Capture, error) { return f(ctx) }

// Queue is the durable pending-capture store the controller writes before
// any upload is attempted.
type Queue interface {
	Enqueue(rec pending.Record) (int64, error)
	Dequeue(id int64) error
}

// Processor runs a finished recording through the processing pipeline.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job, progress chan<- pipeline.Progress) (pipeline.Result, error)
}

// Notifier is the session-facing subset of desktop notification behavior.
type Notifier interface {
	RecordingStarted(ctx context.Context, device string)
	RecordingPaused(ctx context.Context)
	RecordingResumed(ctx context.Context)
	ProcessingStarted(ctx context.Context)
	Complete(ctx context.Context, actsCount int)
	Warn(ctx context.Context, message string)
	Failed(ctx context.Context, message string)
}

// noopNotifier preserves session flow when no notifier is wired.
type noopNotifier struct{}

func (noopNotifier) RecordingStarted(context.Context, string) {}
func (noopNotifier) RecordingPaused(context.Context)          {}
func (noopNotifier) RecordingResumed(context.Context)         {}
func (noopNotifier) ProcessingStarted(context.Context)        {}
func (noopNotifier) Complete(context.Context, int)            {}
func (noopNotifier) Warn(context.Context, string)             {}
func (noopNotifier) Failed(context.Context, string)           {}

// Meta is the capture metadata attached to the recording.
type Meta struct {
	Title       string
	Category    string
	Description string
	Share       bool
}

// Config wires one controller.
type Config struct {
	Logger    *slog.Logger
	Recorder  Recorder
	Queue     Queue
	Processor Processor
	Notifier  Notifier

	Meta Meta

	// MaxDuration is the policy-tier recording limit enforced by the guard.
	MaxDuration time.Duration
	// GuardInterval is the guard poll interval. Zero takes the default.
	GuardInterval time.Duration
	// Auth, when non-nil, lets the guard force-stop on session expiry.
	Auth guard.AuthSession
	// DisableAutoRefresh forwards to the guard: warning-window crossings
	// stay advisory and no token refresh is attempted mid-recording.
	DisableAutoRefresh bool
}

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	SessionID     string
	State         fsm.State
	Cancelled     bool
	ForcedStop    guard.Reason
	QueuedOnly    bool
	PendingID     int64
	Err           error
	Duration      time.Duration
	BytesCaptured int64
	Device        string
	Pipeline      pipeline.Result
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Controller orchestrates session state transitions and side effects.
type Controller struct {
	cfg Config

	mu       sync.RWMutex
	state    fsm.State
	id       string
	capture  Capture
	progress pipeline.Progress

	actions chan action
}

// NewController constructs a controller with safe default fallbacks.
func NewController(cfg Config) *Controller {
	if cfg.Notifier == nil {
		cfg.Notifier = noopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		cfg:     cfg,
		state:   fsm.StateReady,
		actions: make(chan action, 1),
	}
}

// State returns the current state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SessionID returns the id assigned to the active lifecycle, or "".
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// transition applies one event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Run executes one capture lifecycle from start through stop, cancel, or
// forced stop. On success the controller is left in the complete state;
// Acknowledge returns it to ready.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.transition(fsm.EventStart); err != nil {
		return c.finish(result, err)
	}

	c.mu.Lock()
	c.id = uuid.NewString()
	result.SessionID = c.id
	c.mu.Unlock()

	capture, err := c.cfg.Recorder.Start(ctx)
	if err != nil {
		// The record tap rolls back: no session exists and no audio was
		// captured, so the state returns straight to ready.
		_ = c.transition(fsm.EventCancel)
		if errors.Is(err, audio.ErrPermissionDenied) {
			c.cfg.Notifier.Failed(ctx, "Microphone unavailable")
		} else {
			c.cfg.Notifier.Failed(ctx, "Unable to start recording")
		}
		return c.finish(result, err)
	}

	c.mu.Lock()
	c.capture = capture
	c.mu.Unlock()

	c.cfg.Notifier.RecordingStarted(ctx, capture.Device().ID)
	c.cfg.Logger.Info("recording started",
		"session_id", result.SessionID,
		"device", capture.Device().ID,
		"max_duration", c.cfg.MaxDuration.String(),
	)

	guardCtx, stopGuard := context.WithCancel(ctx)
	defer stopGuard()
	g := guard.New(guard.Config{
		MaxDuration:        c.cfg.MaxDuration,
		Interval:           c.cfg.GuardInterval,
		Duration:           capture.Duration,
		Auth:               c.cfg.Auth,
		Logger:             c.cfg.Logger,
		DisableAutoRefresh: c.cfg.DisableAutoRefresh,
	})
	g.Watch(guardCtx)

	var forced guard.Reason
	trips := g.Trips()

arbiter:
	for {
		select {
		case <-ctx.Done():
			rec, _ := capture.Stop()
			_ = c.transition(fsm.EventCancel)
			result.Cancelled = true
			result.Duration = rec.Duration
			result.BytesCaptured = rec.PCMBytes
			result.Device = rec.Device
			return c.finish(result, ctx.Err())

		case trip, ok := <-trips:
			if !ok {
				trips = nil
				continue
			}
			forced = trip.Reason
			break arbiter

		case notice := <-g.Notices():
			c.handleNotice(ctx, notice)

		case a := <-c.actions:
			switch a {
			case actionPause:
				if err := c.transition(fsm.EventPause); err != nil {
					continue
				}
				if err := capture.Pause(); err != nil {
					c.cfg.Logger.Warn("pause failed", "error", err.Error())
				}
				c.cfg.Notifier.RecordingPaused(ctx)
			case actionResume:
				if err := c.transition(fsm.EventResume); err != nil {
					continue
				}
				if err := capture.Resume(); err != nil {
					c.cfg.Logger.Warn("resume failed", "error", err.Error())
				}
				c.cfg.Notifier.RecordingResumed(ctx)
			case actionCancel:
				if err := c.transition(fsm.EventCancel); err != nil {
					continue
				}
				rec, _ := capture.Stop()
				result.Cancelled = true
				result.Duration = rec.Duration
				result.BytesCaptured = rec.PCMBytes
				result.Device = rec.Device
				c.cfg.Logger.Info("recording cancelled", "session_id", result.SessionID)
				return c.finish(result, nil)
			case actionStop:
				break arbiter
			}
		}
	}

	stopGuard()
	return c.process(ctx, capture, forced, result)
}

// process stops capture, queues the recording durably, and runs the
// pipeline unless the stop was forced by session expiry.
func (c *Controller) process(ctx context.Context, capture Capture, forced guard.Reason, result Result) Result {
	if err := c.transition(fsm.EventStop); err != nil {
		return c.finish(result, err)
	}
	result.ForcedStop = forced
	c.cfg.Notifier.ProcessingStarted(ctx)

	rec, err := capture.Stop()
	if err != nil {
		c.toReadyViaFail()
		c.cfg.Notifier.Failed(ctx, "Recording failed")
		return c.finish(result, err)
	}
	result.Duration = rec.Duration
	result.BytesCaptured = rec.PCMBytes
	result.Device = rec.Device

	if len(rec.WAV) == 0 || rec.PCMBytes == 0 {
		c.toReadyViaFail()
		c.cfg.Notifier.Failed(ctx, "No audio captured")
		return c.finish(result, pipeline.ErrEmptyRecording)
	}

	// Durable queueing happens before any network is touched so a crash or
	// offline backend can never lose the recording.
	pendingID, err := c.cfg.Queue.Enqueue(pending.Record{
		Timestamp:   result.StartedAt.UnixMilli(),
		Audio:       rec.WAV,
		Title:       c.cfg.Meta.Title,
		Category:    c.cfg.Meta.Category,
		Description: c.cfg.Meta.Description,
		Share:       c.cfg.Meta.Share,
	})
	if err != nil {
		c.toReadyViaFail()
		c.cfg.Notifier.Failed(ctx, "Could not store recording")
		return c.finish(result, fmt.Errorf("queue recording: %w", err))
	}
	result.PendingID = pendingID

	if forced == guard.ReasonSessionExpired {
		// No valid session to upload under. The recording stays queued for
		// a later upload after re-authentication.
		c.toReadyViaFail()
		result.QueuedOnly = true
		c.cfg.Notifier.Warn(ctx, "Session expired; recording saved locally")
		c.cfg.Logger.Warn("processing skipped",
			"session_id", result.SessionID,
			"pending_id", pendingID,
			"reason", string(forced),
		)
		return c.finish(result, ErrSessionExpired)
	}

	progress := make(chan pipeline.Progress, 16)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		for p := range progress {
			c.mu.Lock()
			c.progress = p
			c.mu.Unlock()
		}
	}()

	job := pipeline.Job{
		Audio:    rec.WAV,
		Duration: rec.Duration,
		Meta:     c.jobMeta(rec.Duration),
	}
	pres, err := c.cfg.Processor.Process(ctx, job, progress)
	<-progressDone
	if err != nil {
		// The audio stays queued; only a confirmed save dequeues it.
		c.toReadyViaFail()
		result.QueuedOnly = true
		c.cfg.Notifier.Failed(ctx, "Processing failed; recording saved locally")
		return c.finish(result, err)
	}
	result.Pipeline = pres

	if err := c.cfg.Queue.Dequeue(pendingID); err != nil && !errors.Is(err, pending.ErrNotFound) {
		c.cfg.Logger.Warn("dequeue after save failed",
			"pending_id", pendingID,
			"error", err.Error(),
		)
	}

	if err := c.transition(fsm.EventSucceed); err != nil {
		return c.finish(result, err)
	}
	c.cfg.Notifier.Complete(ctx, len(pres.Acts))
	c.cfg.Logger.Info("capture complete",
		"session_id", result.SessionID,
		"backend_session_id", pres.SessionID,
		"acts", len(pres.Acts),
	)
	return c.finish(result, nil)
}

// Acknowledge returns a completed session to ready.
func (c *Controller) Acknowledge() error {
	return c.transition(fsm.EventAcknowledge)
}

// Handle serves control commands for the active session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return c.statusResponse()
	case "stop":
		return c.request(actionStop, "stop", fsm.StateRecording, fsm.StatePaused)
	case "pause":
		return c.request(actionPause, "pause", fsm.StateRecording)
	case "resume":
		return c.request(actionResume, "resume", fsm.StatePaused)
	case "cancel":
		return c.request(actionCancel, "cancel", fsm.StateRecording, fsm.StatePaused)
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// request enqueues an action when the current state permits it.
func (c *Controller) request(a action, name string, allowed ...fsm.State) ipc.Response {
	state := c.State()
	if state == fsm.StateProcessing {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot %s while processing", name)}
	}
	permitted := false
	for _, s := range allowed {
		if state == s {
			permitted = true
			break
		}
	}
	if !permitted {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot %s from state %s", name, state)}
	}

	select {
	case c.actions <- a:
		return ipc.Response{OK: true, State: string(state), Message: name + " requested"}
	default:
		return ipc.Response{OK: true, State: string(state), Message: name + " already requested"}
	}
}

// statusResponse snapshots the live session for the status command.
func (c *Controller) statusResponse() ipc.Response {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &ipc.Status{SessionID: c.id}
	if c.capture != nil {
		status.ElapsedSeconds = c.capture.Duration().Seconds()
		status.Device = c.capture.Device().ID
	}
	if c.state == fsm.StateProcessing {
		status.Stage = string(c.progress.Stage)
		status.Percent = c.progress.Percent
	}
	return ipc.Response{OK: true, State: string(c.state), Status: status}
}

// handleNotice surfaces advisory guard events.
func (c *Controller) handleNotice(ctx context.Context, notice guard.Notice) {
	switch notice.Kind {
	case guard.NoticeExpiringSoon:
		c.cfg.Notifier.Warn(ctx, "Session expiring soon")
	case guard.NoticeRefreshed:
		c.cfg.Logger.Info("session refreshed during recording")
	case guard.NoticeRefreshFailed:
		c.cfg.Notifier.Warn(ctx, "Session refresh failed")
	}
}

// toReadyViaFail transitions processing to ready best-effort.
func (c *Controller) toReadyViaFail() {
	_ = c.transition(fsm.EventFail)
}

// finish stamps the terminal fields on a result.
func (c *Controller) finish(result Result, err error) Result {
	result.State = c.State()
	result.Err = err
	result.FinishedAt = time.Now()
	return result
}

func (c *Controller) jobMeta(duration time.Duration) backend.RecordingMeta {
	return backend.RecordingMeta{
		Title:           c.cfg.Meta.Title,
		Category:        c.cfg.Meta.Category,
		Description:     c.cfg.Meta.Description,
		Share:           c.cfg.Meta.Share,
		DurationSeconds: duration.Seconds(),
	}
}
