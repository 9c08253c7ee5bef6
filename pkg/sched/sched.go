// Package sched provides a concurrent scheduler that dispatches work items to
// an execution pool while allowing at most one in-flight item per caller-
// defined bucket, under a global parallelism cap and a priority-aware order
// between buckets.
//
// Items in the same bucket run strictly in insertion order. Across buckets,
// higher priority dispatches first; equal priority dispatches in insertion
// order. Shutdown is stop-and-drain: dispatch ceases, in-flight routines are
// awaited, and undispatched items are returned in priority order.
//
// Two locks guard the state: the bucket map lock is always acquired before
// the heap lock, never the other way around. Building with the deadlock tag
// swaps in lock-order checking mutexes.
package sched

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/Sumatoshi-tech/matchkit/pkg/binheap"
)

// ErrNilRoutine is returned by New when no work routine is supplied.
var ErrNilRoutine = errors.New("sched: nil work routine")

const (
	// priorityShift positions the user priority in the top byte of the
	// composite priority.
	priorityShift = 56

	// seqStart is the initial value of the insertion counter. It decrements
	// per reservation, so earlier items carry larger low bits and win ties
	// under the max ordering.
	seqStart = uint64(1) << priorityShift
)

// Routine is the work function executed for each dispatched item.
type Routine[T any] func(ctx context.Context, work T)

// Executor is the external pool the scheduler hands work to. The default
// executor starts a goroutine per dispatched worker.
type Executor interface {
	Execute(fn func())
}

// GoExecutor runs each function on its own goroutine.
type GoExecutor struct{}

// Execute starts fn on a new goroutine.
func (GoExecutor) Execute(fn func()) {
	go fn()
}

// item is a work value with its scheduling labels. The composite priority
// packs the user priority above an inverted insertion counter, so a single
// max ordering yields priority-then-FIFO dispatch.
type item[T any] struct {
	value     T
	bucket    int64
	composite uint64
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	Enqueued   int64
	Dispatched int64
	Completed  int64
	Active     int64
	Pending    int64
}

// Scheduler dispatches work items of type T.
type Scheduler[T any] struct {
	routine     Routine[T]
	executor    Executor
	baseCtx     context.Context
	maxParallel int

	// seq is decremented per enqueue, outside both locks.
	seq atomic.Uint64

	// bucketsMu is the outer lock. A bucket key is present while an item of
	// that bucket is dispatched or in the ready heap; a non-nil queue holds
	// successors waiting their turn. Queued successors are never in the heap.
	// Once stopped, Enqueue also registers keys whose queue is all they hold.
	bucketsMu mutex
	buckets   map[int64]*fifo[T]

	// heapMu is the inner lock; never acquire bucketsMu while holding it.
	heapMu mutex
	ready  *binheap.Heap[item[T]]
	done   chan struct{}

	// stopped is written only while both locks are held, so reading it
	// under either lock is consistent.
	stopped atomic.Bool

	active     atomic.Int64
	pending    atomic.Int64
	enqueued   atomic.Int64
	dispatched atomic.Int64
	completed  atomic.Int64
}

// Option configures a Scheduler.
type Option[T any] func(*Scheduler[T])

// WithMaxParallelism caps concurrently dispatched items. Zero or negative
// means unlimited.
func WithMaxParallelism[T any](n int) Option[T] {
	return func(s *Scheduler[T]) {
		s.maxParallel = n
	}
}

// WithExecutor injects the execution pool.
func WithExecutor[T any](e Executor) Option[T] {
	return func(s *Scheduler[T]) {
		s.executor = e
	}
}

// WithContext sets the context passed to every routine invocation.
func WithContext[T any](ctx context.Context) Option[T] {
	return func(s *Scheduler[T]) {
		s.baseCtx = ctx
	}
}

// New creates a scheduler executing routine for each dispatched item.
func New[T any](routine Routine[T], opts ...Option[T]) (*Scheduler[T], error) {
	if routine == nil {
		return nil, ErrNilRoutine
	}

	s := &Scheduler[T]{
		routine:  routine,
		executor: GoExecutor{},
		baseCtx:  context.Background(),
		buckets:  make(map[int64]*fifo[T]),
		ready: binheap.NewFunc(func(a, b item[T]) bool {
			return a.composite > b.composite // Max-heap over composite priority.
		}),
	}

	s.seq.Store(seqStart)

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Enqueue schedules work in the given bucket. Higher priority dispatches
// earlier across buckets. Enqueue is accepted in every state; once the
// scheduler is stopping or stopped the item lands in its bucket queue and is
// returned by a later StopAndWait.
func (s *Scheduler[T]) Enqueue(work T, bucket int64, priority uint8) {
	it := item[T]{
		value:     work,
		bucket:    bucket,
		composite: uint64(priority)<<priorityShift | s.seq.Add(^uint64(0)),
	}

	s.pending.Add(1)
	s.enqueued.Add(1)

	s.bucketsMu.Lock()

	q, running := s.buckets[bucket]
	if running || s.stopped.Load() {
		if q == nil {
			q = &fifo[T]{}
			s.buckets[bucket] = q
		}

		q.push(it)
		s.bucketsMu.Unlock()

		return
	}

	// Register the bucket as running with no queued successors.
	s.buckets[bucket] = nil

	s.heapMu.Lock()

	if s.maxParallel <= 0 || s.active.Load() < int64(s.maxParallel) {
		s.active.Add(1)
		s.heapMu.Unlock()
		s.bucketsMu.Unlock()
		s.dispatch(it)

		return
	}

	if err := s.ready.Push(it); err != nil {
		// Unreachable short of 2^31 queued items.
		panic("sched: ready heap push failed: " + err.Error())
	}

	s.heapMu.Unlock()
	s.bucketsMu.Unlock()
}

// StopAndWait ceases dispatch, waits for in-flight routines to finish, and
// returns the values never handed to the executor, ordered by priority then
// insertion. Items enqueued after stopping are collected by a later call.
// The context bounds only the wait, not the in-flight routines.
func (s *Scheduler[T]) StopAndWait(ctx context.Context) ([]T, error) {
	s.bucketsMu.Lock()
	s.heapMu.Lock()

	if s.done == nil {
		s.done = make(chan struct{})
		s.stopped.Store(true)

		if s.active.Load() == 0 {
			close(s.done)
		}
	}

	done := s.done

	s.heapMu.Unlock()
	s.bucketsMu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return s.drain(), nil
}

// drain empties the ready heap and every bucket queue into one slice sorted
// by composite priority descending.
func (s *Scheduler[T]) drain() []T {
	s.bucketsMu.Lock()
	s.heapMu.Lock()

	leftovers := make([]item[T], 0, s.pending.Load())

	for s.ready.Len() > 0 {
		it, err := s.ready.Pop()
		if err != nil {
			break
		}

		leftovers = append(leftovers, it)
	}

	for bucket, q := range s.buckets {
		if q != nil {
			leftovers = append(leftovers, q.items[q.head:]...)
		}

		delete(s.buckets, bucket)
	}

	s.pending.Add(-int64(len(leftovers)))

	s.heapMu.Unlock()
	s.bucketsMu.Unlock()

	sort.Slice(leftovers, func(i, j int) bool {
		return leftovers[i].composite > leftovers[j].composite
	})

	values := make([]T, len(leftovers))
	for i, it := range leftovers {
		values[i] = it.value
	}

	return values
}

// PendingWork returns the number of items not yet handed to the executor.
func (s *Scheduler[T]) PendingWork() int64 {
	return s.pending.Load()
}

// IsStopped reports whether StopAndWait has been entered.
func (s *Scheduler[T]) IsStopped() bool {
	return s.stopped.Load()
}

// MaxParallelism returns the configured cap; zero means unlimited.
func (s *Scheduler[T]) MaxParallelism() int {
	return s.maxParallel
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler[T]) Stats() Stats {
	return Stats{
		Enqueued:   s.enqueued.Load(),
		Dispatched: s.dispatched.Load(),
		Completed:  s.completed.Load(),
		Active:     s.active.Load(),
		Pending:    s.pending.Load(),
	}
}

// dispatch hands an item to the executor. The caller has already reserved an
// active slot.
func (s *Scheduler[T]) dispatch(it item[T]) {
	s.pending.Add(-1)
	s.dispatched.Add(1)
	s.executor.Execute(func() {
		s.worker(it)
	})
}

// worker executes items until the heap runs dry or the scheduler stops. Only
// the worker owning a bucket moves that bucket's successor out of its queue,
// which is what upholds the one-per-bucket invariant; the heap is the single
// source of ready items for dispatch.
func (s *Scheduler[T]) worker(it item[T]) {
	for {
		s.run(it.value)
		s.completed.Add(1)

		s.bucketsMu.Lock()

		q := s.buckets[it.bucket]
		if q == nil || q.empty() {
			delete(s.buckets, it.bucket)
		} else {
			next := q.pop()

			s.heapMu.Lock()

			if err := s.ready.Push(next); err != nil {
				panic("sched: ready heap push failed: " + err.Error())
			}

			s.heapMu.Unlock()
		}

		s.bucketsMu.Unlock()

		s.heapMu.Lock()

		if s.stopped.Load() {
			if s.active.Add(-1) == 0 {
				done := s.done
				s.heapMu.Unlock()
				close(done)

				return
			}

			s.heapMu.Unlock()

			return
		}

		if s.ready.Len() == 0 {
			s.active.Add(-1)
			s.heapMu.Unlock()

			return
		}

		next, err := s.ready.Pop()

		s.pending.Add(-1)
		s.dispatched.Add(1)
		s.heapMu.Unlock()

		if err != nil {
			// Unreachable: length was checked under the lock.
			return
		}

		it = next
	}
}

// run invokes the routine, containing panics so a failing routine cannot
// wedge the completion protocol. The routine's own failures are the caller's
// to observe; the scheduler counts a finish regardless.
func (s *Scheduler[T]) run(work T) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sched: work routine panicked", "panic", r)
		}
	}()

	s.routine(s.baseCtx, work)
}

// fifo is the per-bucket queue of successors. The head index advances on pop
// so drained prefixes are not re-scanned.
type fifo[T any] struct {
	items []item[T]
	head  int
}

func (q *fifo[T]) push(it item[T]) {
	q.items = append(q.items, it)
}

func (q *fifo[T]) pop() item[T] {
	it := q.items[q.head]
	q.items[q.head] = item[T]{} // Release for GC.
	q.head++

	return it
}

func (q *fifo[T]) empty() bool {
	return q.head == len(q.items)
}
