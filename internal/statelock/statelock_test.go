package statelock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/simbridge/medsim/internal/gatewayerr"
)

func TestWithStateLock_RunsFn(t *testing.T) {
	l := New("s1", time.Second)

	var ran bool
	err := l.WithStateLock(context.Background(), "apply-intent", func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestWithStateLock_SerializesConcurrentCallers(t *testing.T) {
	l := New("s1", time.Second)

	var counter int
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithStateLock(context.Background(), "increment", func() error {
				current := counter
				time.Sleep(time.Microsecond)
				counter = current + 1
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
}

func TestWithStateLock_TimesOutWhenHeld(t *testing.T) {
	l := New("s1", 20*time.Millisecond)

	release := make(chan struct{})
	go func() {
		_ = l.WithStateLock(context.Background(), "long-running", func() error {
			<-release
			return nil
		})
	}()

	time.Sleep(5 * time.Millisecond) // let the goroutine acquire first

	err := l.WithStateLock(context.Background(), "blocked", func() error {
		t.Fatal("fn should not run when lock acquisition times out")
		return nil
	})
	require.Error(t, err)

	kind, ok := gatewayerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, gatewayerr.KindStateLockTimeout, kind)

	close(release)
}

func TestWithStateLock_PropagatesFnError(t *testing.T) {
	l := New("s1", time.Second)

	sentinel := context.Canceled
	err := l.WithStateLock(context.Background(), "op", func() error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
}

func TestTryWithStateLock_AcquiresWhenFree(t *testing.T) {
	l := New("s1", time.Second)

	acquired, err := l.TryWithStateLock("heartbeat", func() error { return nil })
	require.True(t, acquired)
	require.NoError(t, err)
}

func TestTryWithStateLock_ReturnsFalseWhenHeld(t *testing.T) {
	l := New("s1", time.Second)

	release := make(chan struct{})
	go func() {
		_ = l.WithStateLock(context.Background(), "handler", func() error {
			<-release
			return nil
		})
	}()
	time.Sleep(5 * time.Millisecond)

	acquired, err := l.TryWithStateLock("heartbeat", func() error {
		t.Fatal("fn should not run when lock is held")
		return nil
	})
	require.False(t, acquired)
	require.NoError(t, err)

	close(release)
}

func TestRegistry_GetCreatesAndReusesLock(t *testing.T) {
	r := NewRegistry(time.Second)

	l1 := r.Get("session-1")
	l2 := r.Get("session-1")
	require.Same(t, l1, l2)

	l3 := r.Get("session-2")
	require.NotSame(t, l1, l3)
}

func TestRegistry_RemoveDiscardsLock(t *testing.T) {
	r := NewRegistry(time.Second)

	l1 := r.Get("session-1")
	r.Remove("session-1")
	l2 := r.Get("session-1")

	require.NotSame(t, l1, l2)
}

func TestWithStateLock_HighContentionLogsWarning(t *testing.T) {
	// Not asserting on log output directly; just verifying the operation
	// still completes correctly under contention exceeding the warn
	// threshold.
	l := New("s1", 2*time.Second)

	var count atomic.Int32
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithStateLock(context.Background(), "slow-op", func() error {
				time.Sleep(30 * time.Millisecond)
				count.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()

	require.Equal(t, int32(5), count.Load())
}
