// ABOUTME: Error taxonomy of the memory manager
// ABOUTME: Sentinel errors plus typed errors carrying allocation and reference details

package heap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prateek/somheap/value"
)

var (
	// ErrOutOfMemory is returned when an allocation cannot be satisfied even after a
	// full collection. It is fatal for the runtime.
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrInvalidConfig is returned by New for a configuration it cannot run with.
	ErrInvalidConfig = errors.New("heap: invalid configuration")

	// ErrReleased is returned by every operation on a released Manager.
	ErrReleased = errors.New("heap: manager released")

	// ErrStaleHandle is returned when resolving a handle taken before the last collection.
	ErrStaleHandle = errors.New("heap: stale handle")

	// ErrCollectionFailed is returned by Allocate and CollectNow once a collection has
	// stopped partway. Root slots may already point into the reserve space.
	ErrCollectionFailed = errors.New("heap: manager unusable after a failed collection")

	// ErrInvalidSize is returned for a non-positive allocation request.
	ErrInvalidSize = errors.New("heap: invalid allocation size")

	// ErrDanglingRef reports a reference that points at no object of the active space.
	ErrDanglingRef = errors.New("heap: dangling reference")
)

// OutOfMemoryError describes a failed allocation.
type OutOfMemoryError struct {
	Requested int // bytes including the header
	Free      int // bytes left in the active space after collecting
	HeapSize  int // capacity of one space
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("heap: out of memory: requested %d bytes, %d of %d free after collection",
		e.Requested, e.Free, e.HeapSize)
}

func (e *OutOfMemoryError) Is(target error) bool { return target == ErrOutOfMemory }

// ConfigError aggregates configuration validation failures.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	if len(e.Issues) == 0 {
		return "heap: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("heap: invalid configuration:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// RefError is raised (as a panic value from accessors, or returned from a collection)
// when a reference does not denote a live object of the active space.
type RefError struct {
	Op     string
	Ref    value.Ref
	Reason string
}

func (e *RefError) Error() string {
	return fmt.Sprintf("heap: %s %#x: %s", e.Op, uint64(e.Ref), e.Reason)
}

func (e *RefError) Is(target error) bool { return target == ErrDanglingRef }

// VerifyError reports the first inconsistency found while walking the heap.
type VerifyError struct {
	Object value.Ref // object holding the bad field, 0 for a root slot
	Field  int
	Target value.Ref
	Reason string
}

func (e *VerifyError) Error() string {
	if e.Object == 0 {
		return fmt.Sprintf("heap: verify: root slot %d -> %#x: %s", e.Field, uint64(e.Target), e.Reason)
	}
	return fmt.Sprintf("heap: verify: object %#x field %d -> %#x: %s",
		uint64(e.Object), e.Field, uint64(e.Target), e.Reason)
}

func (e *VerifyError) Is(target error) bool { return target == ErrDanglingRef }
