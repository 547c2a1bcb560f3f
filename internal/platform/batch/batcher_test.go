package batch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcher_CoalescesSynchronousEnqueues(t *testing.T) {
	t.Parallel()

	sched := &ManualScheduler{}
	var batches [][]int
	b := New(func(items []int) { batches = append(batches, items) }, Config{Scheduler: sched})

	for i := 0; i < 250; i++ {
		require.True(t, b.Enqueue(i))
	}
	require.Equal(t, 1, sched.Pending(), "one window must be scheduled for the whole burst")
	require.Equal(t, 250, b.Len())

	sched.RunPending()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 250)
	assert.Equal(t, 0, b.Len())
}

func TestBatcher_ReentrantEnqueueLandsInNextBatch(t *testing.T) {
	t.Parallel()

	sched := &ManualScheduler{}
	var batches [][]string
	var b *Batcher[string]
	b = New(func(items []string) {
		batches = append(batches, items)
		if len(batches) == 1 {
			b.Enqueue("late")
		}
	}, Config{Scheduler: sched})

	b.Enqueue("a")
	b.Enqueue("b")
	sched.RunPending()

	require.Len(t, batches, 1)
	require.Equal(t, 1, sched.Pending(), "re-entrant enqueue schedules a fresh window")

	sched.RunPending()
	require.Len(t, batches, 2)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"late"}, batches[1])
}

func TestBatcher_MaxItemsFlushesImmediately(t *testing.T) {
	t.Parallel()

	sched := &ManualScheduler{}
	var sizes []int
	b := New(func(items []int) { sizes = append(sizes, len(items)) }, Config{Scheduler: sched, MaxItems: 3})

	for i := 0; i < 7; i++ {
		b.Enqueue(i)
	}
	assert.Equal(t, []int{3, 3}, sizes)

	sched.RunPending()
	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func TestBatcher_StopDrainsAndRejects(t *testing.T) {
	t.Parallel()

	var got []int
	b := New(func(items []int) { got = append(got, items...) }, Config{Scheduler: &ManualScheduler{}})
	b.Enqueue(1)
	b.Enqueue(2)

	b.Stop()
	assert.Equal(t, []int{1, 2}, got)
	assert.False(t, b.Enqueue(3))
}

func TestBatcher_TimerSchedulerDeliversEverythingOnce(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	seen := make(map[int]int)
	done := make(chan struct{})
	var closeOnce sync.Once
	const total = 500

	b := New(func(items []int) {
		mu.Lock()
		defer mu.Unlock()
		for _, item := range items {
			seen[item]++
		}
		if len(seen) == total {
			closeOnce.Do(func() { close(done) })
		}
	}, Config{Scheduler: TimerScheduler{Delay: time.Millisecond}})

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < total/10; i++ {
				b.Enqueue(offset*(total/10) + i)
			}
		}(w)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for batches")
	}

	mu.Lock()
	defer mu.Unlock()
	for item, count := range seen {
		if count != 1 {
			t.Fatalf("item %d drained %d times", item, count)
		}
	}
}
