// ABOUTME: Collector that never reclaims memory
// ABOUTME: Allocation simply runs until the active space is exhausted

package heap

import (
	"iter"

	"github.com/prateek/somheap/value"
)

// NoGC never collects. Allocation past the capacity of one space is OutOfMemory.
type NoGC struct{}

// Name implements Collector.
func (NoGC) Name() string { return PlanNoGC }

// Collect implements Collector. The root set is not consulted.
func (NoGC) Collect(h *Heap, _ iter.Seq[*value.Value]) (Cycle, error) {
	return Cycle{LiveBytes: h.Active().Used()}, nil
}
