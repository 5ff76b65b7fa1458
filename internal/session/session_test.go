package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/actcue/actcue/internal/audio"
	"github.com/actcue/actcue/internal/backend"
	"github.com/actcue/actcue/internal/fsm"
	"github.com/actcue/actcue/internal/guard"
	"github.com/actcue/actcue/internal/ipc"
	"github.com/actcue/actcue/internal/pending"
	"github.com/actcue/actcue/internal/pipeline"
)

type fakeCapture struct {
	mu          sync.Mutex
	rec         audio.Recording
	stopErr     error
	pauseCalls  int
	resumeCalls int
	stopped     bool
}

func (f *fakeCapture) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls++
	return nil
}

func (f *fakeCapture) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeCalls++
	return nil
}

func (f *fakeCapture) Stop() (audio.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return f.rec, f.stopErr
}

func (f *fakeCapture) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.Duration
}

func (f *fakeCapture) BytesCaptured() int64 { return f.rec.PCMBytes }
func (f *fakeCapture) Device() audio.Device { return audio.Device{ID: "fake-mic"} }

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []pending.Record
	dequeued []int64
	nextID   int64
	err      error
}

func (f *fakeQueue) Enqueue(rec pending.Record) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.nextID++
	f.enqueued = append(f.enqueued, rec)
	return f.nextID, nil
}

func (f *fakeQueue) Dequeue(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dequeued = append(f.dequeued, id)
	return nil
}

type fakeProcessor struct {
	mu     sync.Mutex
	calls  int
	result pipeline.Result
	err    error
}

func (f *fakeProcessor) Process(_ context.Context, job pipeline.Job, progress chan<- pipeline.Progress) (pipeline.Result, error) {
	defer close(progress)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		progress <- pipeline.Progress{Stage: pipeline.StageFailed, Message: f.err.Error()}
		return pipeline.Result{}, f.err
	}
	progress <- pipeline.Progress{Stage: pipeline.StageComplete, Percent: 100}
	return f.result, nil
}

func (f *fakeProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func goodRecording() audio.Recording {
	return audio.Recording{
		WAV:      []byte("RIFF-wav"),
		PCMBytes: 320000,
		Device:   "fake-mic",
		Duration: 10 * time.Second,
	}
}

func newTestController(capture *fakeCapture, queue *fakeQueue, proc *fakeProcessor, auth guard.AuthSession) *Controller {
	return NewController(Config{
		Recorder:      RecorderFunc(func(context.Context) (Capture, error) { return capture, nil }),
		Queue:         queue,
		Processor:     proc,
		Meta:          Meta{Title: "Standup", Category: "work", Share: true},
		MaxDuration:   time.Hour,
		GuardInterval: 5 * time.Millisecond,
		Auth:          auth,
	})
}

func runController(t *testing.T, c *Controller) <-chan Result {
	t.Helper()
	results := make(chan Result, 1)
	go func() { results <- c.Run(context.Background()) }()
	waitForState(t, c, fsm.StateRecording)
	return results
}

func waitForState(t *testing.T, c *Controller, want fsm.State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want },
		2*time.Second, time.Millisecond, "controller never reached state %s", want)
}

func waitForResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case result := <-results:
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session result")
		return Result{}
	}
}

func TestRunCompletesHappyPath(t *testing.T) {
	capture := &fakeCapture{rec: goodRecording()}
	queue := &fakeQueue{}
	proc := &fakeProcessor{result: pipeline.Result{
		SessionID:  "sess-1",
		Transcript: "call the doctor",
		Acts:       []backend.ExtractedAct{{Text: "call the doctor", Confidence: 0.9}},
	}}
	c := newTestController(capture, queue, proc, nil)

	results := runController(t, c)
	resp := c.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.True(t, resp.OK)

	result := waitForResult(t, results)
	require.NoError(t, result.Err)
	require.Equal(t, fsm.StateComplete, result.State)
	require.NotEmpty(t, result.SessionID)
	require.Equal(t, "sess-1", result.Pipeline.SessionID)
	require.Len(t, result.Pipeline.Acts, 1)
	require.False(t, result.QueuedOnly)

	// Enqueue happened before processing and the confirmed save dequeued it.
	require.Len(t, queue.enqueued, 1)
	require.Equal(t, "Standup", queue.enqueued[0].Title)
	require.Equal(t, []int64{result.PendingID}, queue.dequeued)

	require.NoError(t, c.Acknowledge())
	require.Equal(t, fsm.StateReady, c.State())
}

func TestPauseAndResumeDriveCapture(t *testing.T) {
	capture := &fakeCapture{rec: goodRecording()}
	queue := &fakeQueue{}
	proc := &fakeProcessor{}
	c := newTestController(capture, queue, proc, nil)

	results := runController(t, c)

	require.True(t, c.Handle(context.Background(), ipc.Request{Command: "pause"}).OK)
	waitForState(t, c, fsm.StatePaused)

	// Pause again is rejected without touching the capture.
	resp := c.Handle(context.Background(), ipc.Request{Command: "pause"})
	require.False(t, resp.OK)

	require.True(t, c.Handle(context.Background(), ipc.Request{Command: "resume"}).OK)
	waitForState(t, c, fsm.StateRecording)

	require.True(t, c.Handle(context.Background(), ipc.Request{Command: "stop"}).OK)
	result := waitForResult(t, results)
	require.NoError(t, result.Err)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.Equal(t, 1, capture.pauseCalls)
	require.Equal(t, 1, capture.resumeCalls)
}

func TestStopAllowedWhilePaused(t *testing.T) {
	capture := &fakeCapture{rec: goodRecording()}
	c := newTestController(capture, &fakeQueue{}, &fakeProcessor{}, nil)

	results := runController(t, c)
	require.True(t, c.Handle(context.Background(), ipc.Request{Command: "pause"}).OK)
	waitForState(t, c, fsm.StatePaused)

	require.True(t, c.Handle(context.Background(), ipc.Request{Command: "stop"}).OK)
	result := waitForResult(t, results)
	require.NoError(t, result.Err)
	require.Equal(t, fsm.StateComplete, result.State)
}

func TestStopWithoutActiveSessionIsRejected(t *testing.T) {
	c := newTestController(&fakeCapture{}, &fakeQueue{}, &fakeProcessor{}, nil)

	resp := c.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "cannot stop from state ready")
}

func TestCancelDiscardsRecording(t *testing.T) {
	capture := &fakeCapture{rec: goodRecording()}
	queue := &fakeQueue{}
	proc := &fakeProcessor{}
	c := newTestController(capture, queue, proc, nil)

	results := runController(t, c)
	require.True(t, c.Handle(context.Background(), ipc.Request{Command: "cancel"}).OK)

	result := waitForResult(t, results)
	require.NoError(t, result.Err)
	require.True(t, result.Cancelled)
	require.Equal(t, fsm.StateReady, result.State)
	require.Empty(t, queue.enqueued, "cancelled recordings must not be queued")
	require.Zero(t, proc.callCount())
}

func TestEmptyRecordingFailsBackToReady(t *testing.T) {
	capture := &fakeCapture{rec: audio.Recording{Device: "fake-mic"}}
	queue := &fakeQueue{}
	proc := &fakeProcessor{}
	c := newTestController(capture, queue, proc, nil)

	results := runController(t, c)
	require.True(t, c.Handle(context.Background(), ipc.Request{Command: "stop"}).OK)

	result := waitForResult(t, results)
	require.ErrorIs(t, result.Err, pipeline.ErrEmptyRecording)
	require.Equal(t, fsm.StateReady, result.State)
	require.Empty(t, queue.enqueued)
	require.Zero(t, proc.callCount())
}

func TestProcessingFailureLeavesRecordingQueued(t *testing.T) {
	capture := &fakeCapture{rec: goodRecording()}
	queue := &fakeQueue{}
	proc := &fakeProcessor{err: errors.New("backend unreachable")}
	c := newTestController(capture, queue, proc, nil)

	results := runController(t, c)
	require.True(t, c.Handle(context.Background(), ipc.Request{Command: "stop"}).OK)

	result := waitForResult(t, results)
	require.Error(t, result.Err)
	require.True(t, result.QueuedOnly)
	require.Equal(t, fsm.StateReady, result.State)
	require.Len(t, queue.enqueued, 1)
	require.Empty(t, queue.dequeued, "a failed save must leave the record queued")
}

type expiredAuth struct{}

func (expiredAuth) IsExpired() bool               { return true }
func (expiredAuth) IsExpiringSoon() bool          { return false }
func (expiredAuth) Refresh(context.Context) error { return nil }

func TestSessionExpiryStopsAndSkipsPipeline(t *testing.T) {
	capture := &fakeCapture{rec: goodRecording()}
	queue := &fakeQueue{}
	proc := &fakeProcessor{}
	c := newTestController(capture, queue, proc, expiredAuth{})

	results := make(chan Result, 1)
	go func() { results <- c.Run(context.Background()) }()

	result := waitForResult(t, results)
	require.ErrorIs(t, result.Err, ErrSessionExpired)
	require.Equal(t, guard.ReasonSessionExpired, result.ForcedStop)
	require.True(t, result.QueuedOnly)
	require.Equal(t, fsm.StateReady, result.State)
	require.Len(t, queue.enqueued, 1, "expired-session audio must be queued")
	require.Zero(t, proc.callCount(), "expired session must not reach the pipeline")
}

func TestDurationLimitForcesStopAndProcesses(t *testing.T) {
	capture := &fakeCapture{rec: goodRecording()}
	queue := &fakeQueue{}
	proc := &fakeProcessor{}
	c := NewController(Config{
		Recorder:      RecorderFunc(func(context.Context) (Capture, error) { return capture, nil }),
		Queue:         queue,
		Processor:     proc,
		MaxDuration:   time.Second,
		GuardInterval: 5 * time.Millisecond,
	})

	results := make(chan Result, 1)
	go func() { results <- c.Run(context.Background()) }()

	result := waitForResult(t, results)
	require.NoError(t, result.Err)
	require.Equal(t, guard.ReasonLimitReached, result.ForcedStop)
	require.Equal(t, fsm.StateComplete, result.State)
	require.Equal(t, 1, proc.callCount())
}

func TestRecorderStartFailureRollsBack(t *testing.T) {
	c := NewController(Config{
		Recorder: RecorderFunc(func(context.Context) (Capture, error) {
			return nil, audio.ErrPermissionDenied
		}),
		Queue:     &fakeQueue{},
		Processor: &fakeProcessor{},
	})

	result := c.Run(context.Background())
	require.ErrorIs(t, result.Err, audio.ErrPermissionDenied)
	require.Equal(t, fsm.StateReady, result.State)
	require.Equal(t, fsm.StateReady, c.State())
}

func TestStatusReportsLiveSession(t *testing.T) {
	capture := &fakeCapture{rec: goodRecording()}
	c := newTestController(capture, &fakeQueue{}, &fakeProcessor{}, nil)

	results := runController(t, c)

	resp := c.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, resp.OK)
	require.Equal(t, string(fsm.StateRecording), resp.State)
	require.NotNil(t, resp.Status)
	require.NotEmpty(t, resp.Status.SessionID)
	require.Equal(t, "fake-mic", resp.Status.Device)
	require.InDelta(t, 10.0, resp.Status.ElapsedSeconds, 0.001)

	require.True(t, c.Handle(context.Background(), ipc.Request{Command: "stop"}).OK)
	waitForResult(t, results)
}

func TestUnknownCommand(t *testing.T) {
	c := newTestController(&fakeCapture{}, &fakeQueue{}, &fakeProcessor{}, nil)
	resp := c.Handle(context.Background(), ipc.Request{Command: "bogus"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "unknown command")
}
