package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/actcue/actcue/internal/backend"
	"github.com/actcue/actcue/internal/pending"
	"github.com/actcue/actcue/internal/pipeline"
)

// renderingProcessor tees pipeline progress into a terminal progress bar
// while forwarding every observation to the session controller.
type renderingProcessor struct {
	runner *pipeline.Runner
	out    io.Writer
}

func (p *renderingProcessor) Process(ctx context.Context, job pipeline.Job, progress chan<- pipeline.Progress) (pipeline.Result, error) {
	bar := newStageBar(p.out)
	inner := make(chan pipeline.Progress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for observed := range inner {
			bar.Describe(stageLabel(observed))
			_ = bar.Set(observed.Percent)
			progress <- observed
		}
	}()

	result, err := p.runner.Process(ctx, job, inner)
	<-done
	close(progress)

	if err == nil {
		_ = bar.Finish()
	}
	fmt.Fprintln(p.out)
	return result, err
}

func newStageBar(out io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("processing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// stageLabel renders one progress observation as the bar description.
func stageLabel(p pipeline.Progress) string {
	switch p.Stage {
	case pipeline.StageFailed:
		return p.Message
	case pipeline.StageComplete:
		return "complete"
	}
	if p.EstimatedRemaining > 0 {
		return fmt.Sprintf("%s (about %s left)", p.Stage, p.EstimatedRemaining.Round(time.Second))
	}
	return string(p.Stage)
}

// pcmDuration recovers audio duration from a 16kHz mono s16 WAV blob.
func pcmDuration(wavLen int) time.Duration {
	const headerBytes = 44
	const bytesPerSecond = 16000 * 2
	if wavLen <= headerBytes {
		return 0
	}
	return time.Duration(wavLen-headerBytes) * time.Second / bytesPerSecond
}

// uploadPendingBacklog replays queued captures through the pipeline, oldest
// first, dequeueing each one only after the backend confirms persistence.
// It stops at the first failure so an offline backend fails fast.
func uploadPendingBacklog(ctx context.Context, store *pending.Store, runner *pipeline.Runner, out io.Writer) error {
	records, err := store.ListPending()
	if err != nil {
		return err
	}
	return uploadPendingRecords(ctx, store, runner, out, records)
}

func uploadPendingRecords(ctx context.Context, store *pending.Store, runner *pipeline.Runner, out io.Writer, records []pending.Record) error {
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		fmt.Fprintf(out, "uploading pending capture %d (%s)\n", rec.Timestamp, rec.Title)

		job := pipeline.Job{
			Audio:    rec.Audio,
			Duration: pcmDuration(len(rec.Audio)),
			Meta: backend.RecordingMeta{
				Title:           rec.Title,
				Category:        rec.Category,
				Description:     rec.Description,
				Share:           rec.Share,
				DurationSeconds: pcmDuration(len(rec.Audio)).Seconds(),
			},
		}

		processor := &renderingProcessor{runner: runner, out: out}
		progress := make(chan pipeline.Progress, 16)
		drained := make(chan struct{})
		go func() {
			defer close(drained)
			for range progress {
			}
		}()

		result, err := processor.Process(ctx, job, progress)
		<-drained
		if err != nil {
			return fmt.Errorf("capture %d: %w", rec.Timestamp, err)
		}

		if err := store.Dequeue(rec.Timestamp); err != nil {
			return fmt.Errorf("dequeue capture %d: %w", rec.Timestamp, err)
		}
		fmt.Fprintf(out, "capture %d saved: %d act(s) extracted\n", rec.Timestamp, len(result.Acts))
	}
	return nil
}
