package sync

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpinlock(t *testing.T) {
	// Substitute the yieldFn with runtime.Gosched to avoid starving the
	// goroutine that holds the lock
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)
	yieldFn = runtime.Gosched

	var (
		sl         Spinlock
		wg         sync.WaitGroup
		numWorkers = 10
		counter    int
	)

	sl.Acquire()
	assert.False(t, sl.TryToAcquire(), "TryToAcquire should fail while the lock is held")

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			sl.Acquire()
			counter++
			sl.Release()
		}()
	}

	<-time.After(50 * time.Millisecond)
	assert.Zero(t, counter, "no worker should enter while the lock is held")

	sl.Release()
	wg.Wait()
	assert.Equal(t, numWorkers, counter)

	assert.True(t, sl.TryToAcquire())
	sl.Release()
	sl.Release()
	assert.True(t, sl.TryToAcquire(), "releasing a free lock has no effect")
}
