package guard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	mu           sync.Mutex
	expired      bool
	expiringSoon bool
	refreshErr   error
	refreshCalls int
}

func (f *fakeAuth) IsExpired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expired
}

func (f *fakeAuth) IsExpiringSoon() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expiringSoon
}

func (f *fakeAuth) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	return f.refreshErr
}

func (f *fakeAuth) set(expired, expiringSoon bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = expired
	f.expiringSoon = expiringSoon
}

func waitForTrip(t *testing.T, trips <-chan Trip) Trip {
	t.Helper()
	select {
	case trip, ok := <-trips:
		require.True(t, ok, "trip channel closed without a trip")
		return trip
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for guard trip")
		return Trip{}
	}
}

func TestGuardTripsOnDurationLimit(t *testing.T) {
	var elapsed time.Duration
	var mu sync.Mutex

	g := New(Config{
		MaxDuration: 100 * time.Millisecond,
		Interval:    5 * time.Millisecond,
		Duration: func() time.Duration {
			mu.Lock()
			defer mu.Unlock()
			return elapsed
		},
	})
	g.Watch(context.Background())

	mu.Lock()
	elapsed = 100 * time.Millisecond
	mu.Unlock()

	trip := waitForTrip(t, g.Trips())
	require.Equal(t, ReasonLimitReached, trip.Reason)
	require.False(t, trip.At.IsZero())

	_, open := <-g.Trips()
	require.False(t, open, "trip channel must close after the single trip")
}

func TestGuardTripsOnSessionExpiry(t *testing.T) {
	authState := &fakeAuth{}
	g := New(Config{
		MaxDuration: time.Hour,
		Interval:    5 * time.Millisecond,
		Duration:    func() time.Duration { return 0 },
		Auth:        authState,
	})
	g.Watch(context.Background())

	authState.set(true, false)

	trip := waitForTrip(t, g.Trips())
	require.Equal(t, ReasonSessionExpired, trip.Reason)
}

func TestGuardWarningDoesNotStopRecording(t *testing.T) {
	authState := &fakeAuth{expiringSoon: true}
	g := New(Config{
		MaxDuration: time.Hour,
		Interval:    5 * time.Millisecond,
		Duration:    func() time.Duration { return 0 },
		Auth:        authState,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g.Watch(ctx)

	select {
	case notice := <-g.Notices():
		require.Equal(t, NoticeExpiringSoon, notice.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expiring-soon notice")
	}

	select {
	case trip, ok := <-g.Trips():
		if ok {
			t.Fatalf("unexpected trip %v while only expiring soon", trip)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestGuardRefreshFailureStillTripsOnHardExpiry(t *testing.T) {
	authState := &fakeAuth{expiringSoon: true, refreshErr: errors.New("refresh down")}
	g := New(Config{
		MaxDuration: time.Hour,
		Interval:    5 * time.Millisecond,
		Duration:    func() time.Duration { return 0 },
		Auth:        authState,
	})
	g.Watch(context.Background())

	var sawWarning, sawRefreshFailed bool
	deadline := time.After(2 * time.Second)
	for !(sawWarning && sawRefreshFailed) {
		select {
		case notice := <-g.Notices():
			switch notice.Kind {
			case NoticeExpiringSoon:
				sawWarning = true
			case NoticeRefreshFailed:
				sawRefreshFailed = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for warning + refresh-failed notices")
		}
	}

	authState.set(true, false)
	trip := waitForTrip(t, g.Trips())
	require.Equal(t, ReasonSessionExpired, trip.Reason)
}

func TestGuardRefreshAttemptedOncePerWarning(t *testing.T) {
	authState := &fakeAuth{expiringSoon: true}
	g := New(Config{
		MaxDuration: time.Hour,
		Interval:    5 * time.Millisecond,
		Duration:    func() time.Duration { return 0 },
		Auth:        authState,
	})

	ctx, cancel := context.WithCancel(context.Background())
	g.Watch(ctx)

	select {
	case notice := <-g.Notices():
		require.Equal(t, NoticeExpiringSoon, notice.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notice")
	}

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-g.Trips()

	authState.mu.Lock()
	defer authState.mu.Unlock()
	require.Equal(t, 1, authState.refreshCalls)
}

func TestGuardAutoRefreshDisabledStaysAdvisory(t *testing.T) {
	authState := &fakeAuth{expiringSoon: true}
	g := New(Config{
		MaxDuration:        time.Hour,
		Interval:           5 * time.Millisecond,
		Duration:           func() time.Duration { return 0 },
		Auth:               authState,
		DisableAutoRefresh: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	g.Watch(ctx)

	select {
	case notice := <-g.Notices():
		require.Equal(t, NoticeExpiringSoon, notice.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expiring-soon notice")
	}

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-g.Trips()

	authState.mu.Lock()
	defer authState.mu.Unlock()
	require.Equal(t, 0, authState.refreshCalls)
}

func TestGuardStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := New(Config{
		MaxDuration: time.Hour,
		Interval:    5 * time.Millisecond,
		Duration:    func() time.Duration { return 0 },
	})
	g.Watch(ctx)

	cancel()

	select {
	case _, open := <-g.Trips():
		require.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("guard did not stop on context cancel")
	}
}
