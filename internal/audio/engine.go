package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	sampleRate = 16000
	channels   = 1
)

// ErrPermissionDenied indicates the microphone could not be acquired.
var ErrPermissionDenied = errors.New("microphone unavailable or permission denied")

// Recording is the blob produced by one engine stop.
type Recording struct {
	WAV      []byte
	PCMBytes int64
	Device   string
	Duration time.Duration
}

// Engine owns the microphone stream for the lifetime of one capture session.
// Frames received while paused are discarded and paused time is excluded
// from the reported duration.
type Engine struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	clock  *stopwatch
	stopCh chan struct{}

	mu      sync.Mutex
	rawPCM  []byte
	paused  bool
	stopped bool

	inflight sync.WaitGroup
	bytes    atomic.Int64
}

// Start acquires the configured input source and begins capturing 16kHz mono
// s16 PCM. Failure to reach the Pulse server surfaces as ErrPermissionDenied.
func Start(ctx context.Context, input string, fallback string) (*Engine, error) {
	selection, err := SelectDevice(ctx, input, fallback)
	if err != nil {
		return nil, err
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("actcue"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect pulse server: %v", ErrPermissionDenied, err)
	}

	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: resolve source %q: %v", ErrPermissionDenied, selection.Device.ID, err)
	}

	engine := &Engine{
		device: selection.Device,
		client: client,
		clock:  newStopwatch(nil),
		stopCh: make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(engine.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordMediaName("actcue capture"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: create record stream: %v", ErrPermissionDenied, err)
	}

	engine.stream = stream
	stream.Start()
	engine.clock.start()

	go func() {
		<-ctx.Done()
		_, _ = engine.Stop()
	}()

	return engine, nil
}

// Device returns capture metadata for logging and diagnostics.
func (e *Engine) Device() Device {
	return e.device
}

// Duration reports elapsed recording time excluding paused intervals.
func (e *Engine) Duration() time.Duration {
	return e.clock.elapsed()
}

// BytesCaptured reports total PCM bytes accepted while unpaused.
func (e *Engine) BytesCaptured() int64 {
	return e.bytes.Load()
}

// Pause suspends capture without releasing the microphone stream.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return errors.New("engine already stopped")
	}
	e.paused = true
	e.clock.pause()
	return nil
}

// Resume continues capture after a pause. No audio is lost across the
// pause/resume boundary; the paused gap is simply absent from the PCM.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return errors.New("engine already stopped")
	}
	e.paused = false
	e.clock.start()
	return nil
}

// Stop halts the stream, releases the microphone, and returns the captured
// blob. Safe to call more than once; later calls return the same recording.
func (e *Engine) Stop() (Recording, error) {
	e.mu.Lock()
	if e.stopped {
		pcm := e.rawPCM
		e.mu.Unlock()
		return e.buildRecording(pcm), nil
	}
	e.stopped = true
	e.clock.pause()
	close(e.stopCh)
	e.mu.Unlock()

	if e.stream != nil {
		e.stream.Stop()
		e.stream.Close()
	}
	if e.client != nil {
		e.client.Close()
	}

	e.inflight.Wait()

	e.mu.Lock()
	pcm := e.rawPCM
	e.mu.Unlock()

	return e.buildRecording(pcm), nil
}

// buildRecording wraps a PCM snapshot in the session-facing recording value.
func (e *Engine) buildRecording(pcm []byte) Recording {
	rec := Recording{
		PCMBytes: int64(len(pcm)),
		Device:   DescribeDevice(e.device),
		Duration: e.clock.elapsed(),
	}
	if len(pcm) > 0 {
		rec.WAV = EncodePCM16WAV(pcm, sampleRate, channels)
	}
	return rec
}

// onPCM receives raw Pulse frames; paused and stopped frames are dropped.
func (e *Engine) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-e.stopCh:
		return 0, io.EOF
	default:
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return 0, io.EOF
	}
	if e.paused {
		e.mu.Unlock()
		return len(buffer), nil
	}
	// Guard Add under the same mutex as e.stopped to avoid Add/Wait races.
	e.inflight.Add(1)
	e.rawPCM = append(e.rawPCM, buffer...)
	e.mu.Unlock()
	defer e.inflight.Done()

	e.bytes.Add(int64(len(buffer)))
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
