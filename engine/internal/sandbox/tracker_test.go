package sandbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryGrowMemoryAllowsShrinkOrSame(t *testing.T) {
	tr := NewResourceTracker(100, 10)
	assert.True(t, tr.TryGrowMemory(50, 50))
	assert.True(t, tr.TryGrowMemory(50, 10))
}

func TestTryGrowMemoryDeniesOverCeiling(t *testing.T) {
	tr := NewResourceTracker(100, 10)
	ok := tr.TryGrowMemory(50, 150)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), tr.GrowFailures())
}

func TestTryGrowMemoryTracksPeak(t *testing.T) {
	tr := NewResourceTracker(100, 10)
	assert.True(t, tr.TryGrowMemory(10, 40))
	assert.True(t, tr.TryGrowMemory(40, 60))
	assert.Equal(t, uint32(60), tr.Peak())

	// A later shrink to a lower value must not lower the peak.
	assert.True(t, tr.TryGrowMemory(60, 30))
	assert.Equal(t, uint32(60), tr.Peak())
}

func TestTryGrowTableDeniesOverCeiling(t *testing.T) {
	tr := NewResourceTracker(100, 10)
	assert.False(t, tr.TryGrowTable(5, 20))
	assert.True(t, tr.TryGrowTable(5, 8))
}

func TestPeakIsSafeUnderConcurrentGrowth(t *testing.T) {
	tr := NewResourceTracker(1000, 10)
	var wg sync.WaitGroup
	for i := uint32(1); i <= 100; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.TryGrowMemory(0, i)
		}()
	}
	wg.Wait()
	assert.Equal(t, uint32(100), tr.Peak())
}
