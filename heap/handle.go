// ABOUTME: Epoch-checked handles for references held outside the root set
// ABOUTME: Resolving a handle after a collection fails instead of returning a moved address

package heap

import (
	"fmt"

	"github.com/prateek/somheap/value"
)

// Handle is a reference captured in one collection epoch. Host code that cannot root a
// reference keeps a Handle and resolves it before use; a collection in between is
// reported as ErrStaleHandle rather than silently yielding an address that moved.
type Handle struct {
	ref   value.Ref
	epoch uint64
}

// Handle captures ref in the current epoch.
func (m *Manager) Handle(ref value.Ref) Handle {
	return Handle{ref: ref, epoch: m.epoch}
}

// Epoch is the epoch the handle was taken in.
func (h Handle) Epoch() uint64 { return h.epoch }

// Resolve returns the reference of h if no collection happened since it was taken.
func (m *Manager) Resolve(h Handle) (value.Ref, error) {
	if m.released {
		return 0, fmt.Errorf("heap: resolve: %w", ErrReleased)
	}
	if h.epoch != m.epoch {
		return 0, fmt.Errorf("heap: handle %#x taken in epoch %d, now %d: %w",
			uint64(h.ref), h.epoch, m.epoch, ErrStaleHandle)
	}
	return h.ref, nil
}
