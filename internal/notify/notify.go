// Package notify raises desktop notifications for capture lifecycle events
// over the freedesktop DBus interface via busctl.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Desktop emits capture lifecycle notifications. A disabled Desktop is a
// no-op so callers never branch on configuration.
type Desktop struct {
	enable  bool
	appName string
	logger  *slog.Logger

	mu     sync.Mutex
	lastID uint32
}

// New constructs a desktop notifier.
func New(enable bool, appName string, logger *slog.Logger) *Desktop {
	if appName == "" {
		appName = "actcue"
	}
	return &Desktop{enable: enable, appName: appName, logger: logger}
}

// RecordingStarted announces the live recording and its input device.
func (d *Desktop) RecordingStarted(ctx context.Context, device string) {
	summary := "Recording"
	if device != "" {
		summary = "Recording on " + device
	}
	d.send(ctx, summary, 300000)
}

// RecordingPaused announces a paused recording.
func (d *Desktop) RecordingPaused(ctx context.Context) {
	d.send(ctx, "Recording paused", 300000)
}

// RecordingResumed announces a resumed recording.
func (d *Desktop) RecordingResumed(ctx context.Context) {
	d.send(ctx, "Recording resumed", 300000)
}

// ProcessingStarted announces the post-capture processing stage.
func (d *Desktop) ProcessingStarted(ctx context.Context) {
	d.send(ctx, "Processing capture", 300000)
}

// Complete announces a finished capture and its extracted act count.
func (d *Desktop) Complete(ctx context.Context, actsCount int) {
	d.send(ctx, fmt.Sprintf("Capture complete: %d acts", actsCount), 5000)
}

// Warn raises a short-lived advisory notification.
func (d *Desktop) Warn(ctx context.Context, message string) {
	d.send(ctx, message, 5000)
}

// Failed raises a failure notification.
func (d *Desktop) Failed(ctx context.Context, message string) {
	d.send(ctx, message, 5000)
}

// Dismiss closes the most recent notification.
func (d *Desktop) Dismiss(ctx context.Context) {
	if !d.enable {
		return
	}
	d.mu.Lock()
	id := d.lastID
	d.mu.Unlock()
	if id == 0 {
		return
	}
	if err := desktopDismiss(ctx, id); err != nil {
		d.log("notification dismiss failed", err)
	}
}

// send replaces the previous notification so lifecycle updates occupy a
// single notification slot.
func (d *Desktop) send(ctx context.Context, summary string, timeoutMS int) {
	if !d.enable {
		return
	}

	d.mu.Lock()
	replaceID := d.lastID
	d.mu.Unlock()

	id, err := desktopNotify(ctx, d.appName, replaceID, summary, timeoutMS)
	if err != nil {
		d.log("notification failed", err)
		return
	}

	d.mu.Lock()
	d.lastID = id
	d.mu.Unlock()
}

func (d *Desktop) log(message string, err error) {
	if d.logger == nil {
		return
	}
	d.logger.Warn(message, "error", err.Error())
}

// desktopNotify sends one notification over DBus and returns the server
// assigned notification id.
func desktopNotify(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error) {
	args := []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"Notify",
		"susssasa{sv}i",
		appName,
		fmt.Sprintf("%d", replaceID),
		"",
		summary,
		"",
		"0", // actions array length
		"0", // hints map length
		fmt.Sprintf("%d", timeoutMS),
	}

	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return 0, fmt.Errorf("desktop notify failed: %w", err)
		}
		return 0, fmt.Errorf("desktop notify failed: %w (%s)", err, trimmed)
	}

	return parseNotifyID(string(out))
}

// parseNotifyID extracts the notification id from a busctl Notify reply.
func parseNotifyID(out string) (uint32, error) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) < 2 || fields[0] != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", strings.TrimSpace(out))
	}

	value, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", fields[1], err)
	}
	return uint32(value), nil
}

// desktopDismiss requests explicit close by notification id.
func desktopDismiss(ctx context.Context, id uint32) error {
	args := []string{
		"--user",
		"call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
		"CloseNotification",
		"u",
		fmt.Sprintf("%d", id),
	}

	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return fmt.Errorf("desktop dismiss failed: %w", err)
		}
		return fmt.Errorf("desktop dismiss failed: %w (%s)", err, trimmed)
	}
	return nil
}
