package sched_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/matchkit/pkg/sched"
)

const (
	waitTimeout  = 5 * time.Second
	pollInterval = 2 * time.Millisecond
	settleDelay  = 50 * time.Millisecond
)

func TestNew_NilRoutine(t *testing.T) {
	t.Parallel()

	_, err := sched.New[int](nil)
	assert.ErrorIs(t, err, sched.ErrNilRoutine)
}

func TestBasic_AllItemsExecute(t *testing.T) {
	t.Parallel()

	var sum atomic.Int64

	s, err := sched.New(func(_ context.Context, v int64) {
		sum.Add(v)
	})
	require.NoError(t, err)

	for i, v := range []int64{1, 2, 3, 4} {
		s.Enqueue(v, int64(i), 0)
	}

	leftovers, err := s.StopAndWait(context.Background())
	require.NoError(t, err)

	assert.Empty(t, leftovers)
	assert.Equal(t, int64(10), sum.Load())
	assert.Equal(t, int64(0), s.PendingWork())
}

func TestSingleBucket_Serializes(t *testing.T) {
	t.Parallel()

	started := make(chan int, 3)
	release := make(chan struct{})

	s, err := sched.New(func(_ context.Context, v int) {
		started <- v
		<-release
	})
	require.NoError(t, err)

	s.Enqueue(1, 0, 0)
	s.Enqueue(2, 1, 0)
	s.Enqueue(3, 1, 0)

	// Bucket 0 and the first bucket-1 item dispatch; the second bucket-1
	// item must wait its turn in the bucket queue.
	first := <-started
	second := <-started

	assert.ElementsMatch(t, []int{1, 2}, []int{first, second})

	select {
	case v := <-started:
		t.Fatalf("item %d started while its bucket was busy", v)
	case <-time.After(settleDelay):
	}

	close(release)

	select {
	case v := <-started:
		assert.Equal(t, 3, v)
	case <-time.After(waitTimeout):
		t.Fatal("third item never started")
	}

	leftovers, err := s.StopAndWait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	assert.Equal(t, int64(3), s.Stats().Completed)
}

func TestPriorityOrder_SingleWorker(t *testing.T) {
	t.Parallel()

	started := make(chan int, 6)
	release := make(chan struct{})

	s, err := sched.New(func(_ context.Context, v int) {
		started <- v
		<-release
	}, sched.WithMaxParallelism[int](1))
	require.NoError(t, err)

	s.Enqueue(1, 0, 1)
	require.Equal(t, 1, <-started) // In-flight before the rest arrive.

	s.Enqueue(2, 0, 1)
	s.Enqueue(3, 1, 3)
	s.Enqueue(4, 2, 2)
	s.Enqueue(5, 1, 3)
	s.Enqueue(6, 2, 2)

	order := []int{1}

	for range 5 {
		release <- struct{}{}

		select {
		case v := <-started:
			order = append(order, v)
		case <-time.After(waitTimeout):
			t.Fatalf("stalled after %v", order)
		}
	}

	release <- struct{}{}

	assert.Equal(t, []int{1, 3, 5, 4, 6, 2}, order)

	leftovers, err := s.StopAndWait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestStopAndDrain_ReturnsByPriority(t *testing.T) {
	t.Parallel()

	started := make(chan int, 1)
	release := make(chan struct{})

	s, err := sched.New(func(_ context.Context, v int) {
		started <- v
		<-release
	}, sched.WithMaxParallelism[int](1))
	require.NoError(t, err)

	s.Enqueue(1, 0, 1)
	require.Equal(t, 1, <-started)

	s.Enqueue(2, 0, 0)
	s.Enqueue(3, 1, 2)
	s.Enqueue(4, 2, 0)
	s.Enqueue(5, 1, 3)
	s.Enqueue(6, 2, 0)

	result := make(chan []int, 1)

	go func() {
		leftovers, stopErr := s.StopAndWait(context.Background())
		if stopErr != nil {
			leftovers = nil
		}

		result <- leftovers
	}()

	require.Eventually(t, s.IsStopped, waitTimeout, pollInterval)
	close(release)

	select {
	case leftovers := <-result:
		assert.Equal(t, []int{5, 3, 2, 4, 6}, leftovers)
	case <-time.After(waitTimeout):
		t.Fatal("stop never completed")
	}
}

func TestBucketMutualExclusion(t *testing.T) {
	t.Parallel()

	const (
		buckets      = 8
		itemsPer     = 50
		maxParallel  = 16
		totalItems   = buckets * itemsPer
		perBucketCap = 1
	)

	var (
		inFlight  [buckets]atomic.Int64
		violation atomic.Bool
		done      sync.WaitGroup
	)

	done.Add(totalItems)

	s, err := sched.New(func(_ context.Context, b int64) {
		if inFlight[b].Add(1) > perBucketCap {
			violation.Store(true)
		}

		inFlight[b].Add(-1)
		done.Done()
	}, sched.WithMaxParallelism[int64](maxParallel))
	require.NoError(t, err)

	for i := range totalItems {
		s.Enqueue(int64(i%buckets), int64(i%buckets), uint8(i%4))
	}

	done.Wait()

	leftovers, err := s.StopAndWait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	assert.False(t, violation.Load(), "more than one item of a bucket ran concurrently")
}

func TestParallelismCap(t *testing.T) {
	t.Parallel()

	const (
		maxParallel = 3
		totalItems  = 60
	)

	var (
		current   atomic.Int64
		peak      atomic.Int64
		completed sync.WaitGroup
	)

	completed.Add(totalItems)

	s, err := sched.New(func(_ context.Context, _ int) {
		n := current.Add(1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(time.Millisecond)
		current.Add(-1)
		completed.Done()
	}, sched.WithMaxParallelism[int](maxParallel))
	require.NoError(t, err)

	for i := range totalItems {
		s.Enqueue(i, int64(i), 0)
	}

	completed.Wait()

	_, err = s.StopAndWait(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, peak.Load(), int64(maxParallel))
	assert.Equal(t, maxParallel, s.MaxParallelism())
}

func TestConservation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})

	s, err := sched.New(func(_ context.Context, _ int) {
		started <- struct{}{}
		<-release
	}, sched.WithMaxParallelism[int](1))
	require.NoError(t, err)

	const totalItems = 20

	for i := range totalItems {
		s.Enqueue(i, int64(i%5), 0)
	}

	<-started

	result := make(chan []int, 1)

	go func() {
		leftovers, _ := s.StopAndWait(context.Background())
		result <- leftovers
	}()

	require.Eventually(t, s.IsStopped, waitTimeout, pollInterval)
	close(release)

	leftovers := <-result
	stats := s.Stats()

	assert.Equal(t, stats.Enqueued, stats.Dispatched+int64(len(leftovers))+stats.Pending)
	assert.Equal(t, int64(totalItems), stats.Enqueued)
	assert.Equal(t, int64(0), stats.Pending)
}

func TestEnqueueAfterStop_DrainedBySecondCall(t *testing.T) {
	t.Parallel()

	s, err := sched.New(func(_ context.Context, _ int) {})
	require.NoError(t, err)

	leftovers, err := s.StopAndWait(context.Background())
	require.NoError(t, err)
	require.Empty(t, leftovers)
	require.True(t, s.IsStopped())

	// Accepted, but routed to the bucket queue instead of dispatch.
	s.Enqueue(1, 0, 0)
	s.Enqueue(2, 1, 5)
	assert.Equal(t, int64(2), s.PendingWork())

	leftovers, err = s.StopAndWait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, leftovers)
	assert.Equal(t, int64(0), s.PendingWork())
}

func TestStopAndWait_ContextCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 1)

	s, err := sched.New(func(_ context.Context, _ int) {
		started <- struct{}{}
		<-release
	})
	require.NoError(t, err)

	s.Enqueue(1, 0, 0)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), settleDelay)
	defer cancel()

	_, err = s.StopAndWait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The scheduler is still stopping; a later call completes the drain.
	close(release)

	leftovers, err := s.StopAndWait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestUnlimitedParallelism(t *testing.T) {
	t.Parallel()

	const totalItems = 32

	var running sync.WaitGroup

	running.Add(totalItems)
	release := make(chan struct{})

	s, err := sched.New(func(_ context.Context, _ int) {
		running.Done()
		<-release
	})
	require.NoError(t, err)

	// Distinct buckets: with no cap, every item dispatches immediately.
	for i := range totalItems {
		s.Enqueue(i, int64(i), 0)
	}

	waitDone := make(chan struct{})

	go func() {
		running.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(waitTimeout):
		t.Fatal("not all items dispatched concurrently")
	}

	close(release)

	_, err = s.StopAndWait(context.Background())
	require.NoError(t, err)
}

// countingExecutor verifies the injected pool receives every dispatch.
type countingExecutor struct {
	calls atomic.Int64
}

func (e *countingExecutor) Execute(fn func()) {
	e.calls.Add(1)

	go fn()
}

func TestWithExecutor_ReceivesDispatches(t *testing.T) {
	t.Parallel()

	exec := &countingExecutor{}

	var done sync.WaitGroup

	done.Add(4)

	s, err := sched.New(func(_ context.Context, _ int) {
		done.Done()
	}, sched.WithExecutor[int](exec))
	require.NoError(t, err)

	for i := range 4 {
		s.Enqueue(i, int64(i), 0)
	}

	done.Wait()

	_, err = s.StopAndWait(context.Background())
	require.NoError(t, err)

	// One Execute call per worker, not per item: a worker drains the heap.
	assert.GreaterOrEqual(t, exec.calls.Load(), int64(1))
	assert.LessOrEqual(t, exec.calls.Load(), int64(4))
}

func TestRoutinePanic_DoesNotWedgeCompletion(t *testing.T) {
	t.Parallel()

	s, err := sched.New(func(_ context.Context, v int) {
		if v == 2 {
			panic("boom")
		}
	})
	require.NoError(t, err)

	for i := range 4 {
		s.Enqueue(i, int64(i), 0)
	}

	leftovers, err := s.StopAndWait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	assert.Equal(t, int64(4), s.Stats().Completed)
}
