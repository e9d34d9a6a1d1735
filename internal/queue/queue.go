// Package queue serializes work per conversation. Every conversation gets
// its own FIFO and exactly one worker goroutine, so tasks of one
// conversation never overlap while different conversations run in parallel.
package queue

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"replybot/internal/metrics"
	"replybot/internal/platform"
)

// ErrClosed is returned by Enqueue after Shutdown.
var ErrClosed = errors.New("dispatcher is shut down")

// Task is one inbound event waiting for its conversation's worker.
type Task struct {
	ID             string
	ConversationID string
	Event          platform.Event
	EnqueuedAt     time.Time
}

// Handler processes a task. Returned errors and panics are logged and do not
// stop the worker.
type Handler func(ctx context.Context, task Task) error

type Options struct {
	Handler Handler
	// Gap returns the pause inserted after each task of a conversation.
	Gap func() time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

// Dispatcher owns the conversation queues. Queues are created on first use
// and live until Shutdown.
type Dispatcher struct {
	handler Handler
	gap     func() time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	log     *zap.Logger

	runCtx context.Context
	stop   context.CancelFunc
	// stopped is done once Shutdown was called; workers watch it between tasks.
	stopped context.Context

	mu     sync.Mutex
	queues map[string]*conversationQueue
	closed bool
	wg     sync.WaitGroup
}

type conversationQueue struct {
	id string

	mu         sync.Mutex
	pending    *list.List
	processing bool
	wake       chan struct{}
}

// New creates a dispatcher. ctx is handed to every handler call; cancelling
// it aborts in-flight network calls.
func New(ctx context.Context, opts Options) (*Dispatcher, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("queue: handler is required")
	}
	if opts.Gap == nil {
		opts.Gap = func() time.Duration { return 0 }
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	stopped, stop := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: opts.Handler,
		gap:     opts.Gap,
		sleep:   opts.Sleep,
		log:     opts.Logger,
		runCtx:  ctx,
		stop:    stop,
		stopped: stopped,
		queues:  make(map[string]*conversationQueue),
	}, nil
}

// Enqueue appends a task to its conversation's queue, creating the queue and
// its worker if needed. It never waits for the worker.
func (d *Dispatcher) Enqueue(conversationID string, task Task) error {
	if conversationID == "" {
		return fmt.Errorf("queue: empty conversation id")
	}
	task.ConversationID = conversationID
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	q, ok := d.queues[conversationID]
	if !ok {
		q = &conversationQueue{id: conversationID, pending: list.New(), wake: make(chan struct{}, 1)}
		d.queues[conversationID] = q
		metrics.Conversations.Inc()
		d.wg.Add(1)
		go d.work(q)
	}
	d.mu.Unlock()

	q.push(task)
	return nil
}

func (d *Dispatcher) work(q *conversationQueue) {
	defer d.wg.Done()
	defer q.drop()
	log := d.log.With(zap.String("conversation_id", q.id))
	for {
		task, ok := q.pop()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-d.stopped.Done():
				return
			}
		}
		d.run(log, task)
		q.finish()

		if d.stopped.Err() != nil {
			return
		}
		if err := d.sleep(d.stopped, d.gap()); err != nil {
			return
		}
	}
}

func (d *Dispatcher) run(log *zap.Logger, task Task) {
	log = log.With(zap.String("task_id", task.ID))
	defer func() {
		if r := recover(); r != nil {
			metrics.TasksTotal.WithLabelValues("panic").Inc()
			log.Error("task panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()

	if err := d.handler(d.runCtx, task); err != nil {
		metrics.TasksTotal.WithLabelValues("error").Inc()
		log.Error("task failed", zap.Error(err))
		return
	}
	metrics.TasksTotal.WithLabelValues("ok").Inc()
}

// Stats reports waiting and in-flight tasks per conversation.
type Stats struct {
	ConversationID string
	Pending        int
	Processing     bool
}

func (d *Dispatcher) Stats() []Stats {
	d.mu.Lock()
	qs := make([]*conversationQueue, 0, len(d.queues))
	for _, q := range d.queues {
		qs = append(qs, q)
	}
	d.mu.Unlock()

	out := make([]Stats, 0, len(qs))
	for _, q := range qs {
		q.mu.Lock()
		out = append(out, Stats{ConversationID: q.id, Pending: q.pending.Len(), Processing: q.processing})
		q.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConversationID < out[j].ConversationID })
	return out
}

// Shutdown stops accepting tasks and waits for running tasks to finish.
// Tasks still waiting in a queue are dropped.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		d.stop()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *conversationQueue) push(t Task) {
	q.mu.Lock()
	q.pending.PushBack(t)
	metrics.QueueDepth.Inc()
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop takes the front task and marks the queue busy.
func (q *conversationQueue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.pending.Front()
	if front == nil {
		return Task{}, false
	}
	q.pending.Remove(front)
	metrics.QueueDepth.Dec()
	q.processing = true
	return front.Value.(Task), true
}

// drop discards whatever is still waiting when the worker exits.
func (q *conversationQueue) drop() {
	q.mu.Lock()
	n := q.pending.Len()
	q.pending.Init()
	q.mu.Unlock()
	metrics.QueueDepth.Sub(float64(n))
	metrics.Conversations.Dec()
}

func (q *conversationQueue) finish() {
	q.mu.Lock()
	q.processing = false
	q.mu.Unlock()
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
