package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNotifyID(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want uint32
	}{
		{name: "valid", out: "u 42\n", want: 42},
		{name: "valid large", out: "u 4294967295", want: 4294967295},
		{name: "wrong type tag", out: "s hello"},
		{name: "missing value", out: "u"},
		{name: "not a number", out: "u forty-two"},
		{name: "empty", out: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := parseNotifyID(tc.out)
			if tc.want == 0 {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, id)
		})
	}
}

func TestDisabledDesktopIsNoop(t *testing.T) {
	d := New(false, "actcue", nil)

	// None of these may shell out when disabled.
	ctx := context.Background()
	d.RecordingStarted(ctx, "mic")
	d.RecordingPaused(ctx)
	d.RecordingResumed(ctx)
	d.ProcessingStarted(ctx)
	d.Complete(ctx, 3)
	d.Warn(ctx, "warn")
	d.Failed(ctx, "failed")
	d.Dismiss(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	require.Zero(t, d.lastID)
}
