package jobs

// Test Plan for Pool:
// - every submitted job runs exactly once
// - workers are created lazily and never exceed the limit
// - idle workers exit down to a single retained worker
// - Close drains queued jobs and rejects later submissions
// - Submit honors context cancellation while the queue is full

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsAllJobs(t *testing.T) {
	t.Parallel()

	p := NewPool(4, time.Minute, nil)
	defer p.Close()

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(context.Background(), func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(100), n.Load())
	assert.LessOrEqual(t, p.Workers(), 4)
}

func TestPool_LazyWorkers(t *testing.T) {
	t.Parallel()

	p := NewPool(4, time.Minute, nil)
	defer p.Close()
	assert.Equal(t, 0, p.Workers())

	release := make(chan struct{})
	var started sync.WaitGroup
	for i := 0; i < 6; i++ {
		if i < 4 {
			started.Add(1)
		}
		i := i
		require.NoError(t, p.Submit(context.Background(), func() {
			if i < 4 {
				started.Done()
			}
			<-release
		}))
	}
	started.Wait()
	assert.Equal(t, 4, p.Workers())
	close(release)
}

func TestPool_IdleWorkersExitToFloor(t *testing.T) {
	t.Parallel()

	p := NewPool(4, 20*time.Millisecond, nil)
	defer p.Close()

	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(context.Background(), func() {
			started.Done()
			<-release
		}))
	}
	started.Wait()
	close(release)

	assert.Eventually(t, func() bool { return p.Workers() == 1 }, 5*time.Second, 10*time.Millisecond)

	// The retained worker stays.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, p.Workers())
}

func TestPool_CloseDrainsAndRejects(t *testing.T) {
	t.Parallel()

	p := NewPool(1, time.Minute, nil)

	var n atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(context.Background(), func() {
			time.Sleep(5 * time.Millisecond)
			n.Add(1)
		}))
	}
	p.Close()
	assert.Equal(t, int32(3), n.Load())

	err := p.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrPoolClosed)
	p.Close()
}

func TestPool_SubmitCancelled(t *testing.T) {
	t.Parallel()

	p := NewPool(1, time.Minute, nil)
	release := make(chan struct{})
	defer func() {
		close(release)
		p.Close()
	}()

	// One running plus a full queue.
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), func() { <-release }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Submit(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
