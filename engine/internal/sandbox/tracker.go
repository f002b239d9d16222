package sandbox

import "sync/atomic"

// ResourceTracker enforces a hard ceiling on memory/table pages grown by a
// single WASM invocation, records the observed peak under compare-and-swap
// so concurrent metric readers never see a torn value, and counts
// growth-refusals. One tracker is constructed per sandbox Instance and
// accumulates across all Extract calls made on that Instance.
//
// Grounded on the memory pre-check and fault classification in the
// zkoranges-go-claw wasm host. The hard ceiling itself is enforced by
// wazero's own WithMemoryLimitPages on the runtime config (sandbox.go);
// this tracker additionally records peak usage and growth refusals by
// polling the guest's actual memory size after each call.
type ResourceTracker struct {
	maxMemoryPages uint32
	maxTablePages  uint32

	current    atomic.Uint32
	peak       atomic.Uint32
	tableCur   atomic.Uint32
	growFailed atomic.Uint64
}

// NewResourceTracker builds a tracker bounded by the given page ceilings.
func NewResourceTracker(maxMemoryPages, maxTablePages uint32) *ResourceTracker {
	return &ResourceTracker{maxMemoryPages: maxMemoryPages, maxTablePages: maxTablePages}
}

// TryGrowMemory implements the host's memory-growth gate. desired <= current
// is always allowed per spec §4.1.
func (t *ResourceTracker) TryGrowMemory(current, desired uint32) bool {
	if desired <= current {
		return true
	}
	if desired > t.maxMemoryPages {
		t.growFailed.Add(1)
		return false
	}
	t.current.Store(desired)
	for {
		p := t.peak.Load()
		if desired <= p || t.peak.CompareAndSwap(p, desired) {
			break
		}
	}
	return true
}

// TryGrowTable mirrors TryGrowMemory for table growth, against a separate
// ceiling (spec §4.1: "table growth follows the same policy").
func (t *ResourceTracker) TryGrowTable(current, desired uint32) bool {
	if desired <= current {
		return true
	}
	if desired > t.maxTablePages {
		t.growFailed.Add(1)
		return false
	}
	t.tableCur.Store(desired)
	return true
}

// Peak returns the highest memory page count observed so far.
func (t *ResourceTracker) Peak() uint32 { return t.peak.Load() }

// GrowFailures returns the count of denied growth requests.
func (t *ResourceTracker) GrowFailures() uint64 { return t.growFailed.Load() }
