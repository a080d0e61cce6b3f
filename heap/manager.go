// ABOUTME: Manager: the single handle interpreters hold on the managed heap
// ABOUTME: Owns both spaces, the collector, root registrations and statistics

package heap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prateek/somheap/value"
)

// Stats is a point-in-time copy of the Manager's counters.
type Stats struct {
	BytesAllocated               uint64
	Allocations                  uint64
	CollectionsPerformed         int
	LiveBytesAfterLastCollection int
	ObjectsCopiedLastCollection  int
	BytesInUse                   int
	HeapSize                     int
	TotalPause                   time.Duration
	Epoch                        uint64
}

// Manager owns the heap of one runtime instance. It is not safe for concurrent use:
// the mutator and the collector run on the same goroutine.
type Manager struct {
	cfg       Config
	log       *slog.Logger
	heap      *Heap
	collector Collector

	providers    []providerEntry
	nextProvider int
	scopes       []*Scope

	epoch    uint64
	stats    Stats
	released bool
	failed   error // set by a collection that stopped partway
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger collections and failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithCollector replaces the collector selected by Config.Plan.
func WithCollector(c Collector) Option {
	return func(m *Manager) { m.collector = c }
}

// New validates cfg and reserves both spaces.
func New(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg: cfg,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	switch cfg.Plan {
	case PlanNoGC:
		m.collector = NoGC{}
	default:
		m.collector = SemiSpace{}
	}
	for _, opt := range opts {
		opt(m)
	}

	s0, err := newSpace(0, cfg.HeapSize, cfg.Backing)
	if err != nil {
		return nil, err
	}
	s1, err := newSpace(1, cfg.HeapSize, cfg.Backing)
	if err != nil {
		_ = s0.free()
		return nil, err
	}
	m.heap = &Heap{spaces: [2]*Space{s0, s1}, layouts: newLayouts()}
	m.log.Debug("heap reserved", "plan", m.collector.Name(), "heap_size", cfg.HeapSize,
		"stress", cfg.Stress, "backing", cfg.Backing)
	return m, nil
}

// Run creates a Manager, passes it to fn and releases it on every exit path, panics
// included.
func Run(cfg Config, fn func(*Manager) error, opts ...Option) (err error) {
	m, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := m.Release(); err == nil {
			err = rerr
		}
	}()
	return fn(m)
}

// Config returns the configuration the Manager was created with.
func (m *Manager) Config() Config { return m.cfg }

// Collector returns the active collection strategy.
func (m *Manager) Collector() Collector { return m.collector }

// RegisterLayout adds a fixed-object layout whose first rawWords words are not traced.
func (m *Manager) RegisterLayout(name string, rawWords int) (LayoutID, error) {
	return m.heap.layouts.Register(name, rawWords)
}

// Layout returns a registered layout.
func (m *Manager) Layout(id LayoutID) (*Layout, bool) { return m.heap.layouts.Get(id) }

// Epoch counts completed collections. References taken in an earlier epoch are stale.
func (m *Manager) Epoch() uint64 { return m.epoch }

func (m *Manager) activeSpace(op string) *Space {
	if m.released {
		panic(fmt.Errorf("heap: %s: %w", op, ErrReleased))
	}
	return m.heap.Active()
}

// Allocate reserves size bytes, header included, for an object of the given kind and
// returns its address. Traced words start out nil; the rest is zero.
func (m *Manager) Allocate(size int, kind Kind) (value.Ref, error) {
	if size <= 0 {
		return 0, fmt.Errorf("heap: allocate %d bytes: %w", size, ErrInvalidSize)
	}
	hdr := Header{Shape: kind.Shape, Layout: kind.Layout, Elem: kind.Elem}
	payload := max(alignUp(size), HeaderSize) - HeaderSize
	switch kind.Shape {
	case ShapeFixed:
		layout, ok := m.heap.layouts.Get(kind.Layout)
		if !ok {
			return 0, fmt.Errorf("heap: allocate: unknown layout %d", kind.Layout)
		}
		hdr.Count = payload / WordSize
		if hdr.Count < layout.RawWords {
			return 0, fmt.Errorf("heap: allocate %d bytes: %s needs %d raw words: %w",
				size, layout.Name, layout.RawWords, ErrInvalidSize)
		}
	case ShapeSlice:
		if kind.Elem.Width() == 0 {
			return 0, fmt.Errorf("heap: allocate: unknown element kind %d", kind.Elem)
		}
		hdr.Count = payload / kind.Elem.Width()
	default:
		return 0, fmt.Errorf("heap: allocate: unknown shape %d", kind.Shape)
	}
	if hdr.Count > maxCount {
		return 0, fmt.Errorf("heap: allocate %d bytes: %w", size, ErrInvalidSize)
	}
	return m.allocate(hdr)
}

// AllocObject allocates a fixed object with nfields traced fields after the layout's
// raw words.
func (m *Manager) AllocObject(layout LayoutID, nfields int) (value.Ref, error) {
	l, ok := m.heap.layouts.Get(layout)
	if !ok {
		return 0, fmt.Errorf("heap: alloc object: unknown layout %d", layout)
	}
	if nfields < 0 || l.RawWords+nfields > maxCount {
		return 0, fmt.Errorf("heap: alloc object with %d fields: %w", nfields, ErrInvalidSize)
	}
	return m.allocate(Header{Shape: ShapeFixed, Layout: layout, Count: l.RawWords + nfields})
}

func (m *Manager) allocate(hdr Header) (value.Ref, error) {
	if m.released {
		return 0, fmt.Errorf("heap: allocate: %w", ErrReleased)
	}
	if m.failed != nil {
		return 0, fmt.Errorf("heap: allocate: %w: %w", ErrCollectionFailed, m.failed)
	}
	size := hdr.Size()
	if m.cfg.Stress || m.heap.Active().Free() < size {
		reason := "exhausted"
		if m.cfg.Stress {
			reason = "stress"
		}
		if _, err := m.collect(reason); err != nil {
			return 0, err
		}
	}
	sp := m.heap.Active()
	ref, ok := sp.Bump(size)
	if !ok {
		err := &OutOfMemoryError{Requested: size, Free: sp.Free(), HeapSize: sp.Size()}
		m.log.Error("out of memory", "requested", size, "free", sp.Free(),
			"heap_size", sp.Size(), "plan", m.collector.Name())
		return 0, err
	}
	m.initObject(sp, ref, hdr)
	m.stats.BytesAllocated += uint64(size)
	m.stats.Allocations++
	return ref, nil
}

func (m *Manager) initObject(sp *Space, ref value.Ref, hdr Header) {
	le.PutUint64(sp.bytes(ref, HeaderSize), hdr.encode())
	first := hdr.Count
	switch {
	case hdr.Shape == ShapeSlice && hdr.Elem.Traced():
		first = 0
	case hdr.Shape == ShapeFixed:
		layout, _ := m.heap.layouts.Get(hdr.Layout)
		first = min(layout.RawWords, hdr.Count)
	}
	for i := first; i < hdr.Count; i++ {
		le.PutUint64(wordAt(sp, ref, i), uint64(value.Nil))
	}
}

// CollectNow runs a full collection and returns the statistics afterwards.
func (m *Manager) CollectNow() (Stats, error) {
	if m.released {
		return Stats{}, fmt.Errorf("heap: collect: %w", ErrReleased)
	}
	if m.failed != nil {
		return m.Stats(), fmt.Errorf("heap: collect: %w: %w", ErrCollectionFailed, m.failed)
	}
	if _, err := m.collect("explicit"); err != nil {
		return m.Stats(), err
	}
	return m.Stats(), nil
}

func (m *Manager) collect(reason string) (Cycle, error) {
	start := time.Now()
	cycle, err := m.collector.Collect(m.heap, m.roots())
	pause := time.Since(start)
	if err != nil {
		m.log.Error("collection failed", "plan", m.collector.Name(), "reason", reason, "error", err)
		m.failed = err
		return cycle, fmt.Errorf("heap: collection: %w", err)
	}
	if !cycle.Performed {
		return cycle, nil
	}
	m.epoch++
	m.stats.CollectionsPerformed++
	m.stats.LiveBytesAfterLastCollection = cycle.LiveBytes
	m.stats.ObjectsCopiedLastCollection = cycle.Copied
	m.stats.TotalPause += pause
	m.log.Debug("collection",
		"plan", m.collector.Name(),
		"reason", reason,
		"epoch", m.epoch,
		"live_bytes", cycle.LiveBytes,
		"copied", cycle.Copied,
		"pause", pause)
	if m.cfg.Verify {
		if err := m.Verify(); err != nil {
			m.log.Error("heap verification failed", "epoch", m.epoch, "error", err)
			return cycle, err
		}
	}
	return cycle, nil
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	s := m.stats
	s.HeapSize = m.cfg.HeapSize
	s.Epoch = m.epoch
	if !m.released {
		s.BytesInUse = m.heap.Active().Used()
	}
	return s
}

// Release returns both spaces to the operating system. It must be called exactly once;
// later calls return ErrReleased.
func (m *Manager) Release() error {
	if m.released {
		return ErrReleased
	}
	m.released = true
	m.providers = nil
	m.scopes = nil
	err := errors.Join(m.heap.spaces[0].free(), m.heap.spaces[1].free())
	m.log.Debug("heap released", "collections", m.stats.CollectionsPerformed,
		"bytes_allocated", m.stats.BytesAllocated, "error", err)
	if err != nil {
		return fmt.Errorf("heap: release: %w", err)
	}
	return nil
}

// Released reports whether Release has been called.
func (m *Manager) Released() bool { return m.released }
