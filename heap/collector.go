// ABOUTME: Collector contract and the two-space copying collector
// ABOUTME: Evacuates everything reachable from the roots breadth-first, then swaps spaces

package heap

import (
	"fmt"
	"iter"

	"github.com/emirpasic/gods/queues/arrayqueue"

	"github.com/prateek/somheap/value"
)

// Collector is a collection strategy. It is invoked synchronously by the Manager with
// the full root set of the cycle.
type Collector interface {
	Name() string
	Collect(h *Heap, roots iter.Seq[*value.Value]) (Cycle, error)
}

// Cycle is the outcome of one Collect call.
type Cycle struct {
	Performed bool // false when the strategy reclaimed nothing by design
	Copied    int  // objects evacuated
	LiveBytes int  // bytes in use in the active space afterwards
}

// Heap is the view of the two spaces a Collector works on.
type Heap struct {
	spaces  [2]*Space
	active  int
	layouts *Layouts
}

// Active is the space allocation happens in.
func (h *Heap) Active() *Space { return h.spaces[h.active] }

// Reserve is the space survivors are copied into.
func (h *Heap) Reserve() *Space { return h.spaces[1-h.active] }

// Layouts resolves fixed-object layouts.
func (h *Heap) Layouts() *Layouts { return h.layouts }

// Flip swaps the roles of the two spaces.
func (h *Heap) Flip() { h.active = 1 - h.active }

// SemiSpace is the copying collector.
type SemiSpace struct{}

// Name implements Collector.
func (SemiSpace) Name() string { return PlanSemiSpace }

// Collect copies every object reachable from roots into the reserve space, rewrites
// every root slot and traced field to the new addresses, clears the old active space
// and swaps the spaces.
func (SemiSpace) Collect(h *Heap, roots iter.Seq[*value.Value]) (Cycle, error) {
	from, to := h.Active(), h.Reserve()
	to.Reset()
	ev := &evacuator{
		from:    from,
		to:      to,
		layouts: h.layouts,
		forward: make(map[value.Ref]value.Ref),
		queue:   arrayqueue.New(),
	}
	for slot := range roots {
		v, err := ev.relocate("collect root", *slot)
		if err != nil {
			return Cycle{}, err
		}
		*slot = v
	}
	for !ev.queue.Empty() {
		next, _ := ev.queue.Dequeue()
		if err := ev.scan(next.(value.Ref)); err != nil {
			return Cycle{}, err
		}
	}
	from.Reset()
	h.Flip()
	return Cycle{Performed: true, Copied: ev.copied, LiveBytes: to.Used()}, nil
}

// evacuator holds the state of one copying cycle. forward is the forwarding table; it
// lives exactly as long as the cycle.
type evacuator struct {
	from, to *Space
	layouts  *Layouts
	forward  map[value.Ref]value.Ref
	queue    *arrayqueue.Queue
	copied   int
}

// relocate returns v with its reference moved to the reserve space, copying the referent
// the first time it is seen.
func (ev *evacuator) relocate(op string, v value.Value) (value.Value, error) {
	if !v.IsRef() || v.Ref() == 0 {
		return v, nil
	}
	ref := v.Ref()
	switch {
	case ev.to.Contains(ref):
		// a slot yielded twice, already rewritten this cycle
		return v, nil
	case ev.from.Contains(ref):
		nref, err := ev.evacuate(op, ref)
		if err != nil {
			return v, err
		}
		return v.WithRef(nref), nil
	}
	return v, &RefError{Op: op, Ref: ref, Reason: "reference outside the active space"}
}

func (ev *evacuator) evacuate(op string, ref value.Ref) (value.Ref, error) {
	if nref, ok := ev.forward[ref]; ok {
		return nref, nil
	}
	if ev.from.offset(ref)%WordSize != 0 {
		return 0, &RefError{Op: op, Ref: ref, Reason: "misaligned reference"}
	}
	hdr, ok := decodeHeader(le.Uint64(ev.from.bytes(ref, HeaderSize)))
	size := hdr.Size()
	if !ok || ev.from.offset(ref)+size > ev.from.Used() {
		return 0, &RefError{Op: op, Ref: ref, Reason: "no object header at this address"}
	}
	nref, ok := ev.to.Bump(size)
	if !ok {
		return 0, &OutOfMemoryError{Requested: size, Free: ev.to.Free(), HeapSize: ev.to.Size()}
	}
	copy(ev.to.bytes(nref, size), ev.from.bytes(ref, size))
	ev.forward[ref] = nref
	ev.queue.Enqueue(nref)
	ev.copied++
	return nref, nil
}

// scan rewrites the traced words of an object already copied to the reserve space.
func (ev *evacuator) scan(ref value.Ref) error {
	hdr, _ := decodeHeader(le.Uint64(ev.to.bytes(ref, HeaderSize)))
	first := 0
	switch hdr.Shape {
	case ShapeSlice:
		if !hdr.Elem.Traced() {
			return nil
		}
	case ShapeFixed:
		layout, ok := ev.layouts.Get(hdr.Layout)
		if !ok {
			return &RefError{Op: "collect", Ref: ref, Reason: fmt.Sprintf("unknown layout %d", hdr.Layout)}
		}
		first = layout.RawWords
	}
	for i := first; i < hdr.Count; i++ {
		w := wordAt(ev.to, ref, i)
		v, err := ev.relocate("collect field", value.Value(le.Uint64(w)))
		if err != nil {
			return err
		}
		le.PutUint64(w, uint64(v))
	}
	return nil
}
