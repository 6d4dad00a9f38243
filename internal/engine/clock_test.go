package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_StepsAreNumberedFromOne(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current(), "Current does not advance")
}

func TestClock_ResumesAfterRecordedSteps(t *testing.T) {
	c := NewClockAt(7)
	assert.Equal(t, int64(8), c.Next())
}

func TestClock_ConcurrentStepsGetDistinctSeqs(t *testing.T) {
	c := NewClock()
	const workers, steps = 16, 64

	var (
		mu   sync.Mutex
		seen = make(map[int64]bool)
		wg   sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range steps {
				seq := c.Next()
				mu.Lock()
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*steps)
	assert.Equal(t, int64(workers*steps), c.Current())
}

func TestSystemTime(t *testing.T) {
	ts := SystemTime()
	before := ts.Now()
	<-ts.After(0)
	assert.False(t, ts.Now().Before(before))
}
