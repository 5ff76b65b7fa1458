package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/actcue/actcue/internal/ipc"
)

const controlTimeout = 2 * time.Second

// sendControl issues one command to the live session socket.
func sendControl(ctx context.Context, command string) (ipc.Response, error) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return ipc.Response{}, err
	}

	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, controlTimeout)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return ipc.Response{}, errors.New("no active capture session")
		}
		return ipc.Response{}, err
	}
	if !resp.OK {
		return resp, errors.New(resp.Error)
	}
	return resp, nil
}

func controlCommand(use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := sendControl(cmd.Context(), command)
			if err != nil {
				return err
			}
			fmt.Printf("%s (state %s)\n", resp.Message, resp.State)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return controlCommand("stop", "Stop the active recording and process it", "stop")
}

func pauseCmd() *cobra.Command {
	return controlCommand("pause", "Pause the active recording", "pause")
}

func resumeCmd() *cobra.Command {
	return controlCommand("resume", "Resume a paused recording", "resume")
}

func cancelCmd() *cobra.Command {
	return controlCommand("cancel", "Cancel the active recording and discard its audio", "cancel")
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := sendControl(cmd.Context(), "status")
			if err != nil {
				return err
			}

			fmt.Printf("state: %s\n", resp.State)
			if resp.Status == nil {
				return nil
			}
			if resp.Status.SessionID != "" {
				fmt.Printf("session: %s\n", resp.Status.SessionID)
			}
			if resp.Status.Device != "" {
				fmt.Printf("device: %s\n", resp.Status.Device)
			}
			if resp.Status.ElapsedSeconds > 0 {
				fmt.Printf("elapsed: %s\n", (time.Duration(resp.Status.ElapsedSeconds * float64(time.Second))).Round(time.Second))
			}
			if resp.Status.Stage != "" {
				fmt.Printf("processing: %s (%d%%)\n", resp.Status.Stage, resp.Status.Percent)
			}
			return nil
		},
	}
}
