// ABOUTME: Contiguous heap space with a bump-pointer allocation cursor
// ABOUTME: Each space owns a disjoint address range so a reference identifies its space

package heap

import (
	"fmt"

	"github.com/prateek/somheap/value"
)

const (
	// WordSize is the size of a field, a Value element and the object header.
	WordSize = 8

	spaceShift   = 40
	maxSpaceSize = 1 << spaceShift
)

// Space is one half of the heap. Objects are laid out back to back from the start of
// the space up to the cursor.
type Space struct {
	id      int
	base    value.Ref
	mem     []byte
	cursor  int
	release func() error
}

func newSpace(id, size int, backing string) (*Space, error) {
	mem, release, err := reserve(size, backing)
	if err != nil {
		return nil, fmt.Errorf("heap: reserve space %d (%d bytes): %w", id, size, err)
	}
	return &Space{
		id:      id,
		base:    value.Ref(id+1) << spaceShift,
		mem:     mem,
		release: release,
	}, nil
}

// ID is 0 or 1.
func (s *Space) ID() int { return s.id }

// Base is the address of the first byte of the space.
func (s *Space) Base() value.Ref { return s.base }

// Size is the capacity of the space in bytes.
func (s *Space) Size() int { return len(s.mem) }

// Used is the number of bytes handed out so far.
func (s *Space) Used() int { return s.cursor }

// Free is the number of bytes still available.
func (s *Space) Free() int { return len(s.mem) - s.cursor }

// Contains reports whether ref points into the allocated part of the space.
func (s *Space) Contains(ref value.Ref) bool {
	return ref >= s.base && ref < s.base+value.Ref(s.cursor)
}

// Bump reserves n bytes at the cursor. n must be a multiple of WordSize.
func (s *Space) Bump(n int) (value.Ref, bool) {
	if n <= 0 || n > s.Free() {
		return 0, false
	}
	ref := s.base + value.Ref(s.cursor)
	s.cursor += n
	return ref, true
}

// Reset zeroes the used part of the space and rewinds the cursor.
func (s *Space) Reset() {
	clear(s.mem[:s.cursor])
	s.cursor = 0
}

func (s *Space) offset(ref value.Ref) int { return int(ref - s.base) }

// bytes returns the n bytes starting at ref.
func (s *Space) bytes(ref value.Ref, n int) []byte {
	off := s.offset(ref)
	return s.mem[off : off+n : off+n]
}

func (s *Space) free() error {
	if s.release == nil {
		return nil
	}
	err := s.release()
	s.mem, s.cursor, s.release = nil, 0, nil
	return err
}

func (s *Space) String() string {
	return fmt.Sprintf("space%d[%#x, %d/%d]", s.id, uint64(s.base), s.cursor, len(s.mem))
}
