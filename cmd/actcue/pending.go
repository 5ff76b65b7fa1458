package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/actcue/actcue/internal/pending"
	"github.com/actcue/actcue/internal/pipeline"
)

func pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect and replay captures not yet saved to the backend",
	}
	cmd.AddCommand(pendingListCmd())
	cmd.AddCommand(pendingUploadCmd())
	return cmd
}

func pendingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued captures, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := newAppRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			store, err := openPendingStore(rt.cfg.Config)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListPending()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no pending captures")
				return nil
			}

			for _, rec := range records {
				captured := time.UnixMilli(rec.Timestamp).Format(time.RFC3339)
				title := rec.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%d  %s  %s  %s  %d bytes\n",
					rec.Timestamp, captured, title, pcmDuration(len(rec.Audio)).Round(time.Second), len(rec.Audio))
			}
			return nil
		},
	}
}

func pendingUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload [id]",
		Short: "Upload queued captures through the processing pipeline",
		Long: `Replays queued captures, oldest first, dequeueing each only after the
backend confirms persistence. With an id, uploads that capture alone.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newAppRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()
			cfg := rt.cfg.Config

			store, err := openPendingStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			holder := &tokenHolder{}
			client := rt.backendClient(holder)
			sess, err := loadAuthSession(rt, client)
			if err != nil {
				return err
			}
			if sess != nil {
				holder.set(sess)
			} else {
				fmt.Fprintln(os.Stderr, "warning: no auth token; uploads will likely be rejected")
			}

			runner := pipeline.New(client, pipeline.Config{
				TranscribeRTF:   cfg.Pipeline.TranscribeRTF,
				ExtractEstimate: time.Duration(cfg.Pipeline.ExtractEstimateSeconds) * time.Second,
			}, rt.logger)

			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid capture id %q", args[0])
				}
				rec, err := store.Get(id)
				if err != nil {
					return err
				}
				return uploadPendingRecords(cmd.Context(), store, runner, os.Stderr, []pending.Record{rec})
			}
			return uploadPendingBacklog(cmd.Context(), store, runner, os.Stderr)
		},
	}
}
