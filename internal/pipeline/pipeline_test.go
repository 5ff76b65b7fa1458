package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/actcue/actcue/internal/backend"
)

type fakeService struct {
	saveErr       error
	sessionErr    error
	transcribeErr error
	extractErr    error
	transcript    string
	acts          []backend.ExtractedAct

	gotDuration   time.Duration
	gotTranscript string
}

func (f *fakeService) SaveRecording(_ context.Context, wav []byte, _ backend.RecordingMeta, onProgress func(sent, total int64)) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	if onProgress != nil {
		total := int64(len(wav))
		onProgress(total/2, total)
		onProgress(total, total)
	}
	return "rec-1", nil
}

func (f *fakeService) CreateSession(_ context.Context, recordingID string, _ backend.RecordingMeta) (string, error) {
	if f.sessionErr != nil {
		return "", f.sessionErr
	}
	return "sess-1", nil
}

func (f *fakeService) Transcribe(_ context.Context, _ string, duration time.Duration) (backend.Transcript, error) {
	f.gotDuration = duration
	if f.transcribeErr != nil {
		return backend.Transcript{}, f.transcribeErr
	}
	return backend.Transcript{Text: f.transcript}, nil
}

func (f *fakeService) ExtractActs(_ context.Context, _ string, transcript string) ([]backend.ExtractedAct, error) {
	f.gotTranscript = transcript
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.acts, nil
}

func runJob(t *testing.T, svc Service, job Job, cfg Config) (Result, error, []Progress) {
	t.Helper()

	progress := make(chan Progress, 256)
	var observed []Progress
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range progress {
			observed = append(observed, p)
		}
	}()

	result, err := New(svc, cfg, nil).Process(context.Background(), job, progress)
	<-done
	return result, err, observed
}

func TestProcessRunsStagesInOrder(t *testing.T) {
	svc := &fakeService{
		transcript: "call the doctor by friday",
		acts:       []backend.ExtractedAct{{Text: "call the doctor by friday", Confidence: 0.9}},
	}

	result, err, observed := runJob(t, svc, Job{
		Audio:    []byte("wav"),
		Duration: 30 * time.Second,
	}, Config{Tick: 5 * time.Millisecond})
	require.NoError(t, err)

	require.Equal(t, "rec-1", result.RecordingID)
	require.Equal(t, "sess-1", result.SessionID)
	require.Equal(t, "call the doctor by friday", result.Transcript)
	require.Len(t, result.Acts, 1)
	require.Equal(t, 30*time.Second, svc.gotDuration)
	require.Equal(t, "call the doctor by friday", svc.gotTranscript)

	var stages []Stage
	for _, p := range observed {
		if len(stages) == 0 || stages[len(stages)-1] != p.Stage {
			stages = append(stages, p.Stage)
		}
	}
	require.Equal(t, []Stage{StageUploading, StageTranscribing, StageExtracting, StageComplete}, stages)

	final := observed[len(observed)-1]
	require.Equal(t, StageComplete, final.Stage)
	require.Equal(t, 100, final.Percent)
	require.Contains(t, final.Message, "1 acts")
}

func TestProcessPercentNeverRegresses(t *testing.T) {
	svc := &fakeService{transcript: "t"}
	_, err, observed := runJob(t, svc, Job{
		Audio:    []byte("wav-bytes"),
		Duration: 5 * time.Second,
	}, Config{Tick: time.Millisecond})
	require.NoError(t, err)

	last := -1
	for _, p := range observed {
		require.GreaterOrEqual(t, p.Percent, last, "percent regressed at stage %s", p.Stage)
		last = p.Percent
	}
}

func TestProcessUploadBandEndsAtTwenty(t *testing.T) {
	svc := &fakeService{transcript: "t"}
	_, err, observed := runJob(t, svc, Job{
		Audio:    []byte("0123456789"),
		Duration: 5 * time.Second,
	}, Config{Tick: time.Hour})
	require.NoError(t, err)

	var uploadPercents []int
	for _, p := range observed {
		if p.Stage == StageUploading {
			uploadPercents = append(uploadPercents, p.Percent)
		}
	}
	require.NotEmpty(t, uploadPercents)
	for _, pct := range uploadPercents {
		require.LessOrEqual(t, pct, 20)
	}
	require.Equal(t, 20, uploadPercents[len(uploadPercents)-1])
}

// A ten-minute recording with the default real-time factor of 0.4 enters
// the transcription stage with an estimate of 240 seconds remaining.
func TestProcessTranscribeEstimateScalesWithDuration(t *testing.T) {
	svc := &fakeService{transcript: "t"}
	_, err, observed := runJob(t, svc, Job{
		Audio:    []byte("wav"),
		Duration: 10 * time.Minute,
	}, Config{Tick: time.Hour})
	require.NoError(t, err)

	var first *Progress
	for i := range observed {
		if observed[i].Stage == StageTranscribing {
			first = &observed[i]
			break
		}
	}
	require.NotNil(t, first, "no transcribing progress observed")
	require.InDelta(t, 240.0, first.EstimatedRemaining.Seconds(), 1.0)
}

func TestProcessRejectsEmptyRecording(t *testing.T) {
	svc := &fakeService{}
	_, err, observed := runJob(t, svc, Job{Duration: time.Second}, Config{})
	require.ErrorIs(t, err, ErrEmptyRecording)

	require.NotEmpty(t, observed)
	final := observed[len(observed)-1]
	require.Equal(t, StageFailed, final.Stage)
	require.Contains(t, final.Message, "no audio")
}

func TestProcessStageFailures(t *testing.T) {
	cases := []struct {
		name        string
		svc         *fakeService
		wantErr     error
		wantMessage string
	}{
		{
			name:        "upload",
			svc:         &fakeService{saveErr: errors.New("connection refused")},
			wantErr:     ErrUploadFailed,
			wantMessage: "upload failed",
		},
		{
			name:        "session creation",
			svc:         &fakeService{sessionErr: errors.New("quota exceeded")},
			wantErr:     ErrUploadFailed,
			wantMessage: "upload failed",
		},
		{
			name:        "transcription",
			svc:         &fakeService{transcribeErr: errors.New("asr unavailable")},
			wantErr:     ErrTranscribeFailed,
			wantMessage: "transcription failed",
		},
		{
			name:        "extraction",
			svc:         &fakeService{transcript: "t", extractErr: errors.New("model timeout")},
			wantErr:     ErrExtractionFailed,
			wantMessage: "act extraction failed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err, observed := runJob(t, tc.svc, Job{
				Audio:    []byte("wav"),
				Duration: time.Second,
			}, Config{Tick: time.Hour})
			require.ErrorIs(t, err, tc.wantErr)

			final := observed[len(observed)-1]
			require.Equal(t, StageFailed, final.Stage)
			require.Contains(t, final.Message, tc.wantMessage)
		})
	}
}

func TestProcessFailureKeepsUnderlyingErrorChain(t *testing.T) {
	svc := &fakeService{transcribeErr: context.Canceled}

	_, err, _ := runJob(t, svc, Job{
		Audio:    []byte("wav"),
		Duration: time.Second,
	}, Config{Tick: time.Hour})

	require.ErrorIs(t, err, ErrTranscribeFailed)
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessEmitsWhileStageInFlight(t *testing.T) {
	svc := &fakeService{transcript: "t"}
	slow := &slowService{Service: svc, delay: 60 * time.Millisecond}

	_, err, observed := runJob(t, slow, Job{
		Audio:    []byte("wav"),
		Duration: time.Minute,
	}, Config{Tick: 10 * time.Millisecond})
	require.NoError(t, err)

	ticks := 0
	for _, p := range observed {
		if p.Stage == StageTranscribing {
			ticks++
		}
	}
	require.Greater(t, ticks, 2, "expected periodic emissions during a slow stage")
}

type slowService struct {
	Service
	delay time.Duration
}

func (s *slowService) Transcribe(ctx context.Context, recordingID string, duration time.Duration) (backend.Transcript, error) {
	time.Sleep(s.delay)
	return s.Service.Transcribe(ctx, recordingID, duration)
}
