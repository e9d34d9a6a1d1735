package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replybot/internal/metrics"
)

type recorder struct {
	mu   sync.Mutex
	seen map[string][]string
	done chan string
}

func newRecorder() *recorder {
	return &recorder{seen: make(map[string][]string), done: make(chan string, 256)}
}

func (r *recorder) add(t Task) {
	r.mu.Lock()
	r.seen[t.ConversationID] = append(r.seen[t.ConversationID], t.ID)
	r.mu.Unlock()
	r.done <- t.ID
}

func (r *recorder) order(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen[id]...)
}

func waitN(t *testing.T, ch <-chan string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d tasks", i, n)
		}
	}
}

func TestDispatcher_FIFOWithinConversation(t *testing.T) {
	rec := newRecorder()
	d, err := New(context.Background(), Options{
		Handler: func(ctx context.Context, task Task) error {
			rec.add(task)
			return nil
		},
	})
	require.NoError(t, err)
	defer d.Shutdown(context.Background())

	var want []string
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("t%02d", i)
		want = append(want, id)
		require.NoError(t, d.Enqueue("c1", Task{ID: id}))
	}
	waitN(t, rec.done, 20)
	assert.Equal(t, want, rec.order("c1"))
}

func TestDispatcher_FailureDoesNotStopQueue(t *testing.T) {
	rec := newRecorder()
	d, err := New(context.Background(), Options{
		Handler: func(ctx context.Context, task Task) error {
			defer rec.add(task)
			switch task.ID {
			case "boom":
				panic("handler exploded")
			case "fail":
				return errors.New("llm down")
			}
			return nil
		},
	})
	require.NoError(t, err)
	defer d.Shutdown(context.Background())

	for _, id := range []string{"a", "fail", "b", "boom", "c"} {
		require.NoError(t, d.Enqueue("c1", Task{ID: id}))
	}
	waitN(t, rec.done, 5)
	assert.Equal(t, []string{"a", "fail", "b", "boom", "c"}, rec.order("c1"))
}

func TestDispatcher_ConversationsRunInParallel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 2)
	d, err := New(context.Background(), Options{
		Handler: func(ctx context.Context, task Task) error {
			started <- task.ConversationID
			<-release
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, d.Enqueue("a", Task{ID: "1"}))
	require.NoError(t, d.Enqueue("b", Task{ID: "2"}))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-started:
			got[id] = true
		case <-time.After(5 * time.Second):
			t.Fatal("second conversation was blocked by the first")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)
	close(release)
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatcher_NoOverlapWithinConversation(t *testing.T) {
	var (
		mu     sync.Mutex
		active int
		peak   int
	)
	done := make(chan string, 50)
	d, err := New(context.Background(), Options{
		Handler: func(ctx context.Context, task Task) error {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			done <- task.ID
			return nil
		},
	})
	require.NoError(t, err)
	defer d.Shutdown(context.Background())

	for i := 0; i < 30; i++ {
		require.NoError(t, d.Enqueue("same", Task{ID: fmt.Sprint(i)}))
	}
	waitN(t, done, 30)
	assert.Equal(t, 1, peak)
}

func TestDispatcher_GapAfterEachTask(t *testing.T) {
	var (
		mu    sync.Mutex
		slept []time.Duration
	)
	rec := newRecorder()
	d, err := New(context.Background(), Options{
		Handler: func(ctx context.Context, task Task) error {
			rec.add(task)
			return nil
		},
		Gap: func() time.Duration { return 3 * time.Second },
		Sleep: func(ctx context.Context, dur time.Duration) error {
			mu.Lock()
			slept = append(slept, dur)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, d.Enqueue("c", Task{ID: "1"}))
	require.NoError(t, d.Enqueue("c", Task{ID: "2"}))
	waitN(t, rec.done, 2)
	require.NoError(t, d.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, slept)
	for _, s := range slept {
		assert.Equal(t, 3*time.Second, s)
	}
}

func TestDispatcher_EnqueueAfterShutdown(t *testing.T) {
	d, err := New(context.Background(), Options{Handler: func(context.Context, Task) error { return nil }})
	require.NoError(t, err)
	require.NoError(t, d.Shutdown(context.Background()))
	assert.ErrorIs(t, d.Enqueue("c", Task{ID: "x"}), ErrClosed)
}

func TestDispatcher_ShutdownDropsPendingFromDepth(t *testing.T) {
	depth := testutil.ToFloat64(metrics.QueueDepth)
	conversations := testutil.ToFloat64(metrics.Conversations)

	release := make(chan struct{})
	started := make(chan struct{}, 3)
	d, err := New(context.Background(), Options{
		Handler: func(ctx context.Context, task Task) error {
			started <- struct{}{}
			<-release
			return nil
		},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Enqueue("c", Task{ID: fmt.Sprint(i)}))
	}
	<-started
	assert.Equal(t, depth+2, testutil.ToFloat64(metrics.QueueDepth))

	done := make(chan error, 1)
	go func() { done <- d.Shutdown(context.Background()) }()
	require.Eventually(t, func() bool {
		return errors.Is(d.Enqueue("c", Task{ID: "late"}), ErrClosed)
	}, time.Second, time.Millisecond)
	close(release)
	require.NoError(t, <-done)

	assert.Empty(t, started, "pending tasks must not run after shutdown")
	assert.Equal(t, depth, testutil.ToFloat64(metrics.QueueDepth))
	assert.Equal(t, conversations, testutil.ToFloat64(metrics.Conversations))
}

func TestDispatcher_Validation(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)

	d, err := New(context.Background(), Options{Handler: func(context.Context, Task) error { return nil }})
	require.NoError(t, err)
	defer d.Shutdown(context.Background())
	assert.Error(t, d.Enqueue("", Task{}))
}

func TestDispatcher_Stats(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 3)
	d, err := New(context.Background(), Options{
		Handler: func(ctx context.Context, task Task) error {
			started <- struct{}{}
			<-release
			return nil
		},
	})
	require.NoError(t, err)

	require.NoError(t, d.Enqueue("c", Task{ID: "1"}))
	<-started
	require.NoError(t, d.Enqueue("c", Task{ID: "2"}))
	require.NoError(t, d.Enqueue("c", Task{ID: "3"}))

	stats := d.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "c", stats[0].ConversationID)
	assert.True(t, stats[0].Processing)
	assert.Equal(t, 2, stats[0].Pending)

	close(release)
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}
