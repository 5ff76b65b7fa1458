package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/actcue/actcue/internal/audio"
	"github.com/actcue/actcue/internal/auth"
	"github.com/actcue/actcue/internal/config"
	"github.com/actcue/actcue/internal/fsm"
	"github.com/actcue/actcue/internal/guard"
	"github.com/actcue/actcue/internal/ipc"
	"github.com/actcue/actcue/internal/notify"
	"github.com/actcue/actcue/internal/pending"
	"github.com/actcue/actcue/internal/pipeline"
	"github.com/actcue/actcue/internal/policy"
	"github.com/actcue/actcue/internal/session"
	"github.com/actcue/actcue/internal/smart"
)

func captureCmd() *cobra.Command {
	var title, category, description string
	var share bool

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record a voice capture and process it into acts",
		Long: `Starts recording from the configured input source. While recording,
"actcue pause", "actcue resume", "actcue stop", and "actcue cancel" control
the session over the local socket. Recording stops automatically at the
subscription tier's duration limit or when the auth session expires.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCapture(cmd.Context(), captureOptions{
				Title:       title,
				Category:    category,
				Description: description,
				Share:       share,
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "capture title (default from config)")
	cmd.Flags().StringVar(&category, "category", "", "capture category (default from config)")
	cmd.Flags().StringVar(&description, "description", "", "capture description")
	cmd.Flags().BoolVar(&share, "share", false, "mark the capture as shared")
	return cmd
}

// tapRunningSession delivers the stop tap to an already running capture.
// Stopping fails while that session is processing; report its state instead.
func tapRunningSession(ctx context.Context) error {
	resp, err := sendControl(ctx, "stop")
	if err != nil {
		return fmt.Errorf("capture already running: %w; use \"actcue status\" to inspect it", err)
	}
	fmt.Printf("%s (state %s)\n", resp.Message, resp.State)
	return nil
}

type captureOptions struct {
	Title       string
	Category    string
	Description string
	Share       bool
}

// tokenHolder defers the token source until the auth session is loaded,
// because the backend client is also the session's refresher.
type tokenHolder struct {
	mu   sync.Mutex
	sess *auth.FileSession
}

func (h *tokenHolder) Token() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sess == nil {
		return ""
	}
	return h.sess.Token()
}

func (h *tokenHolder) set(sess *auth.FileSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sess = sess
}

func runCapture(ctx context.Context, opts captureOptions) error {
	rt, err := newAppRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.cfg.Config

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}
	listener, err := ipc.Acquire(ctx, socketPath, 250*time.Millisecond, 2)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			// A second capture invocation is the stop tap.
			return tapRunningSession(ctx)
		}
		return err
	}
	defer listener.Close()

	holder := &tokenHolder{}
	client := rt.backendClient(holder)

	var authSession guard.AuthSession
	sess, err := loadAuthSession(rt, client)
	if err != nil {
		return err
	}
	if sess != nil {
		holder.set(sess)
		authSession = sess
	} else {
		fmt.Fprintln(os.Stderr, "warning: no auth token; processing will fail and captures will queue locally")
	}

	// The tier limit comes from the backend; an unreachable backend gets
	// the most restrictive limit rather than none.
	tier := policy.TierFree
	if authSession != nil {
		if current, tierErr := client.CurrentTier(ctx); tierErr == nil {
			tier = current
		} else {
			rt.logger.Warn("tier lookup failed; applying most restrictive limit", "error", tierErr.Error())
		}
	}
	maxDuration := policy.MaxDuration(tier)

	store, err := openPendingStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := pipeline.New(client, pipeline.Config{
		TranscribeRTF:   cfg.Pipeline.TranscribeRTF,
		ExtractEstimate: time.Duration(cfg.Pipeline.ExtractEstimateSeconds) * time.Second,
	}, rt.logger)
	processor := &renderingProcessor{runner: runner, out: os.Stderr}

	notifier := notify.New(cfg.Notify.Enable, cfg.Notify.AppName, rt.logger)
	defer notifier.Dismiss(context.Background())

	meta := session.Meta{
		Title:       firstNonEmpty(opts.Title, cfg.Capture.Title),
		Category:    firstNonEmpty(opts.Category, cfg.Capture.Category),
		Description: opts.Description,
		Share:       opts.Share || cfg.Capture.Share,
	}

	controller := session.NewController(session.Config{
		Logger: rt.logger,
		Recorder: session.RecorderFunc(func(ctx context.Context) (session.Capture, error) {
			engine, err := audio.Start(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
			if err != nil {
				return nil, err
			}
			return engine, nil
		}),
		Queue:              store,
		Processor:          processor,
		Notifier:           notifier,
		Meta:               meta,
		MaxDuration:        maxDuration,
		GuardInterval:      time.Duration(cfg.Guard.IntervalMS) * time.Millisecond,
		Auth:               authSession,
		DisableAutoRefresh: !cfg.Auth.AutoRefresh,
	})

	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	serveDone := make(chan error, 1)
	go func() { serveDone <- ipc.Serve(serveCtx, listener, controller) }()

	fmt.Fprintf(os.Stderr, "recording (tier %s, limit %s); stop with \"actcue stop\"\n", tier, maxDuration)
	result := controller.Run(ctx)

	stopServe()
	if serveErr := <-serveDone; serveErr != nil {
		rt.logger.Warn("control socket closed with error", "error", serveErr.Error())
	}

	if renderErr := renderCaptureResult(result); renderErr != nil {
		return renderErr
	}

	if result.State == fsm.StateComplete {
		if ackErr := controller.Acknowledge(); ackErr != nil {
			return ackErr
		}
		if cfg.Pending.AutoRetry {
			if retryErr := uploadPendingBacklog(ctx, store, runner, os.Stderr); retryErr != nil {
				fmt.Fprintf(os.Stderr, "pending retry: %v\n", retryErr)
			}
		}
	}
	return nil
}

// renderCaptureResult prints the lifecycle outcome and maps it to an exit
// error where the capture did not fully succeed.
func renderCaptureResult(result session.Result) error {
	switch {
	case result.Cancelled:
		fmt.Println("capture cancelled; recording discarded")
		return nil

	case errors.Is(result.Err, session.ErrSessionExpired):
		fmt.Printf("session expired; recording %d saved locally\n", result.PendingID)
		fmt.Println("sign in again, then run \"actcue pending upload\"")
		return nil

	case errors.Is(result.Err, pipeline.ErrEmptyRecording):
		return errors.New("no audio captured; check the input device with \"actcue devices\"")

	case result.Err != nil && result.QueuedOnly:
		fmt.Printf("processing failed; recording %d saved locally\n", result.PendingID)
		fmt.Println("retry with \"actcue pending upload\"")
		return result.Err

	case result.Err != nil:
		return result.Err
	}

	if result.ForcedStop == guard.ReasonLimitReached {
		fmt.Printf("recording stopped at the %s tier limit\n", result.Duration.Round(time.Second))
	}

	fmt.Printf("capture complete: %s recorded on %s\n", result.Duration.Round(time.Second), result.Device)
	score := smart.Evaluate(result.Pipeline.Transcript)
	fmt.Printf("transcript quality: %d/5 SMART\n", score.Total())
	if len(result.Pipeline.Acts) == 0 {
		fmt.Println("no acts extracted")
		return nil
	}
	fmt.Printf("%d act(s) extracted:\n", len(result.Pipeline.Acts))
	for _, act := range result.Pipeline.Acts {
		fmt.Printf("  - %s (%.0f%%)\n", act.Text, act.Confidence*100)
	}
	return nil
}

func openPendingStore(cfg config.Config) (*pending.Store, error) {
	path := cfg.Pending.DBPath
	if path == "" {
		resolved, err := pending.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	return pending.Open(path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
