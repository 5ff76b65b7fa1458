// Package pipeline runs a finished recording through its three processing
// stages: upload, transcription, act extraction. Progress is reported on a
// channel with stage, percent, elapsed, and an estimated remaining time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/actcue/actcue/internal/backend"
)

// Stage identifies where a job is in the pipeline.
type Stage string

const (
	StageUploading    Stage = "uploading"
	StageTranscribing Stage = "transcribing"
	StageExtracting   Stage = "extracting"
	StageComplete     Stage = "complete"
	StageFailed       Stage = "failed"
)

// Percent bands per stage. Percent never regresses within a job.
const (
	uploadBandEnd     = 20
	transcribeBandEnd = 70
	extractBandEnd    = 100
)

var (
	// ErrEmptyRecording rejects a job whose audio holds no frames.
	ErrEmptyRecording = errors.New("recording contains no audio")

	ErrUploadFailed     = errors.New("upload failed")
	ErrTranscribeFailed = errors.New("transcription failed")
	ErrExtractionFailed = errors.New("act extraction failed")
)

// Progress is one observation of a running job.
type Progress struct {
	Stage              Stage
	Percent            int
	Elapsed            time.Duration
	EstimatedRemaining time.Duration
	Message            string
}

// Job is one recording to process.
type Job struct {
	Audio    []byte
	Duration time.Duration
	Meta     backend.RecordingMeta
}

// Result is the outcome of a completed job.
type Result struct {
	RecordingID string
	SessionID   string
	Transcript  string
	Acts        []backend.ExtractedAct
}

// Service is the backend surface the pipeline drives.
type Service interface {
	SaveRecording(ctx context.Context, wav []byte, meta backend.RecordingMeta, onProgress func(sent, total int64)) (string, error)
	CreateSession(ctx context.Context, recordingID string, meta backend.RecordingMeta) (string, error)
	Transcribe(ctx context.Context, recordingID string, duration time.Duration) (backend.Transcript, error)
	ExtractActs(ctx context.Context, sessionID string, transcript string) ([]backend.ExtractedAct, error)
}

// Config tunes progress estimation.
type Config struct {
	// TranscribeRTF is the real-time factor used to estimate transcription
	// time from audio duration. Zero takes the default of 0.4.
	TranscribeRTF float64
	// ExtractEstimate is the assumed extraction stage duration.
	ExtractEstimate time.Duration
	// Tick is the progress emission interval while a stage is in flight.
	Tick time.Duration
}

// Runner executes jobs against a backend service.
type Runner struct {
	svc    Service
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a runner with defaults filled in.
func New(svc Service, cfg Config, logger *slog.Logger) *Runner {
	if cfg.TranscribeRTF <= 0 {
		cfg.TranscribeRTF = 0.4
	}
	if cfg.ExtractEstimate <= 0 {
		cfg.ExtractEstimate = 10 * time.Second
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Runner{svc: svc, cfg: cfg, logger: logger, now: time.Now}
}

// Process runs one job to completion, emitting Progress on the given channel
// at stage boundaries and at least once per tick while a stage is in flight.
// The channel is closed before Process returns. On a stage failure the last
// Progress carries StageFailed with a stage-specific message and the job's
// audio remains wherever the caller queued it.
func (r *Runner) Process(ctx context.Context, job Job, progress chan<- Progress) (Result, error) {
	tracker := newTracker(r.cfg, r.now, progress)
	defer tracker.closeOut()

	if len(job.Audio) == 0 {
		tracker.fail(ErrEmptyRecording.Error())
		return Result{}, ErrEmptyRecording
	}

	tickerCtx, stopTicker := context.WithCancel(ctx)
	var tickerDone sync.WaitGroup
	tickerDone.Add(1)
	go func() {
		defer tickerDone.Done()
		tracker.tickLoop(tickerCtx, r.cfg.Tick)
	}()
	defer func() {
		stopTicker()
		tickerDone.Wait()
	}()

	// Stage 1: upload. Percent tracks bytes on the wire.
	tracker.enterStage(StageUploading, 0)
	recordingID, err := r.svc.SaveRecording(ctx, job.Audio, job.Meta, tracker.onUploadBytes)
	if err != nil {
		tracker.fail(fmt.Sprintf("upload failed: %v", err))
		return Result{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	r.logInfo("recording uploaded", "recording_id", recordingID, "bytes", len(job.Audio))

	sessionID, err := r.svc.CreateSession(ctx, recordingID, job.Meta)
	if err != nil {
		tracker.fail(fmt.Sprintf("upload failed: %v", err))
		return Result{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	// Stage 2: transcription. ETA scales with audio duration.
	transcribeEstimate := time.Duration(r.cfg.TranscribeRTF * float64(job.Duration))
	if transcribeEstimate < time.Second {
		transcribeEstimate = time.Second
	}
	tracker.enterStage(StageTranscribing, transcribeEstimate)
	transcript, err := r.svc.Transcribe(ctx, recordingID, job.Duration)
	if err != nil {
		tracker.fail(fmt.Sprintf("transcription failed: %v", err))
		return Result{}, fmt.Errorf("%w: %w", ErrTranscribeFailed, err)
	}
	r.logInfo("transcription complete", "recording_id", recordingID, "chars", len(transcript.Text))

	// Stage 3: act extraction.
	tracker.enterStage(StageExtracting, r.cfg.ExtractEstimate)
	acts, err := r.svc.ExtractActs(ctx, sessionID, transcript.Text)
	if err != nil {
		tracker.fail(fmt.Sprintf("act extraction failed: %v", err))
		return Result{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}
	r.logInfo("acts extracted", "session_id", sessionID, "count", len(acts))

	tracker.complete(fmt.Sprintf("extracted %d acts", len(acts)))
	return Result{
		RecordingID: recordingID,
		SessionID:   sessionID,
		Transcript:  transcript.Text,
		Acts:        acts,
	}, nil
}

func (r *Runner) logInfo(message string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Info(message, args...)
}

// tracker owns all Progress math and the output channel. Percent is
// monotonic: a computed value below the last reported one reports the last
// one instead.
type tracker struct {
	cfg Config
	now func() time.Time
	out chan<- Progress

	// sendMu serializes compute-and-send pairs so concurrent emitters can
	// never deliver observations out of percent order.
	sendMu sync.Mutex

	mu            sync.Mutex
	closed        bool
	startedAt     time.Time
	stage         Stage
	stageStart    time.Time
	stageEstimate time.Duration
	uploadSent    int64
	uploadTotal   int64
	maxPercent    int
	terminal      bool
}

func newTracker(cfg Config, now func() time.Time, out chan<- Progress) *tracker {
	return &tracker{cfg: cfg, now: now, out: out, startedAt: now()}
}

// enterStage records the stage boundary and emits an immediate observation.
func (t *tracker) enterStage(stage Stage, estimate time.Duration) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	t.stage = stage
	t.stageStart = t.now()
	t.stageEstimate = estimate
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.emit(snapshot)
}

// onUploadBytes feeds byte counts from the HTTP transport into the upload
// band and emits an observation per callback.
func (t *tracker) onUploadBytes(sent, total int64) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	t.uploadSent, t.uploadTotal = sent, total
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.emit(snapshot)
}

// tickLoop emits periodic observations so elapsed and ETA advance even when
// the backend is quiet.
func (t *tracker) tickLoop(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sendMu.Lock()
			t.mu.Lock()
			if t.terminal {
				t.mu.Unlock()
				t.sendMu.Unlock()
				return
			}
			snapshot := t.snapshotLocked()
			t.mu.Unlock()
			t.emit(snapshot)
			t.sendMu.Unlock()
		}
	}
}

// complete emits the terminal successful observation.
func (t *tracker) complete(message string) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	t.stage = StageComplete
	t.terminal = true
	t.maxPercent = extractBandEnd
	snapshot := Progress{
		Stage:   StageComplete,
		Percent: extractBandEnd,
		Elapsed: t.now().Sub(t.startedAt),
		Message: message,
	}
	t.mu.Unlock()
	t.emit(snapshot)
}

// fail emits the terminal failed observation with percent frozen.
func (t *tracker) fail(message string) {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.mu.Lock()
	t.terminal = true
	snapshot := Progress{
		Stage:   StageFailed,
		Percent: t.maxPercent,
		Elapsed: t.now().Sub(t.startedAt),
		Message: message,
	}
	t.mu.Unlock()
	t.emit(snapshot)
}

// closeOut closes the output channel exactly once.
func (t *tracker) closeOut() {
	t.mu.Lock()
	alreadyClosed := t.closed
	t.closed = true
	t.mu.Unlock()
	if !alreadyClosed {
		close(t.out)
	}
}

// snapshotLocked computes the current observation. Caller holds mu.
func (t *tracker) snapshotLocked() Progress {
	elapsed := t.now().Sub(t.startedAt)
	stageElapsed := t.now().Sub(t.stageStart)

	var percent int
	var remaining time.Duration
	switch t.stage {
	case StageUploading:
		if t.uploadTotal > 0 {
			percent = int(float64(uploadBandEnd) * float64(t.uploadSent) / float64(t.uploadTotal))
			if t.uploadSent > 0 && t.uploadSent < t.uploadTotal {
				rate := float64(stageElapsed) / float64(t.uploadSent)
				remaining = time.Duration(rate * float64(t.uploadTotal-t.uploadSent))
			}
		}
	case StageTranscribing:
		frac := stageFraction(stageElapsed, t.stageEstimate)
		percent = uploadBandEnd + int(frac*float64(transcribeBandEnd-uploadBandEnd))
		remaining = stageRemaining(stageElapsed, t.stageEstimate)
	case StageExtracting:
		frac := stageFraction(stageElapsed, t.stageEstimate)
		percent = transcribeBandEnd + int(frac*float64(extractBandEnd-transcribeBandEnd))
		remaining = stageRemaining(stageElapsed, t.stageEstimate)
	case StageComplete:
		percent = extractBandEnd
	}

	if percent < t.maxPercent {
		percent = t.maxPercent
	}
	t.maxPercent = percent

	return Progress{
		Stage:              t.stage,
		Percent:            percent,
		Elapsed:            elapsed,
		EstimatedRemaining: remaining,
	}
}

// emit delivers an observation unless the channel is already closed.
func (t *tracker) emit(p Progress) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	t.out <- p
}

// stageFraction maps stage elapsed time onto [0, 1). The in-flight fraction
// is capped just under 1 so a stage never reports its band's end before the
// backend call returns.
func stageFraction(elapsed, estimate time.Duration) float64 {
	if estimate <= 0 {
		return 0
	}
	frac := float64(elapsed) / float64(estimate)
	if frac > 0.99 {
		frac = 0.99
	}
	return frac
}

func stageRemaining(elapsed, estimate time.Duration) time.Duration {
	if remaining := estimate - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}
