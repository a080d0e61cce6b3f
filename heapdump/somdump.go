// ABOUTME: Compact binary heap dump format built from unsigned varints
// ABOUTME: Kind names are interned once; object addresses are delta-encoded in address order

package heapdump

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/prateek/somheap/graph"
)

// somdumpMagic opens every binary dump.
//
//	magic
//	uvarint epoch, heap size, used
//	uvarint nkinds, then per kind: uvarint length, bytes
//	uvarint nobjects, then per object in address order:
//	    uvarint address delta, kind index, size, nptrs, then nptrs absolute addresses
//	uvarint nroots, then nroots absolute addresses
const somdumpMagic = "SOMDUMP\x01"

// maxPrealloc bounds the capacity reserved from a count read off the wire.
const maxPrealloc = 1 << 16

// ErrCorruptDump is returned for binary dumps that violate the format.
var ErrCorruptDump = errors.New("corrupt heap dump")

// SomdumpParser reads dumps written by WriteSomdump.
type SomdumpParser struct{}

var _ Parser = (*SomdumpParser)(nil)

// CanParse checks the magic.
func (p *SomdumpParser) CanParse(r io.Reader) bool {
	magic := make([]byte, len(somdumpMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return false
	}
	return string(magic) == somdumpMagic
}

// Parse implements Parser.
func (p *SomdumpParser) Parse(r io.Reader) (graph.Graph, error) {
	sr := &somdumpReader{r: bufio.NewReader(r)}
	d, err := sr.read()
	if err != nil {
		return nil, fmt.Errorf("parsing heap dump: %w", err)
	}
	return d, nil
}

type somdumpReader struct {
	r *bufio.Reader
}

func (sr *somdumpReader) uvarint(what string) (uint64, error) {
	v, err := binary.ReadUvarint(sr.r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, fmt.Errorf("reading %s: %w", what, err)
	}
	return v, nil
}

func (sr *somdumpReader) count(what string) (int, error) {
	n, err := sr.uvarint(what)
	if err != nil {
		return 0, err
	}
	if n > 1<<40 {
		return 0, fmt.Errorf("%s count %d: %w", what, n, ErrCorruptDump)
	}
	return int(n), nil
}

func (sr *somdumpReader) read() (*Dump, error) {
	magic := make([]byte, len(somdumpMagic))
	if _, err := io.ReadFull(sr.r, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != somdumpMagic {
		return nil, fmt.Errorf("bad magic %q: %w", magic, ErrCorruptDump)
	}

	d := newDump()
	var err error
	if d.Epoch, err = sr.uvarint("epoch"); err != nil {
		return nil, err
	}
	if d.HeapSize, err = sr.uvarint("heap size"); err != nil {
		return nil, err
	}
	if d.Used, err = sr.uvarint("used"); err != nil {
		return nil, err
	}

	nkinds, err := sr.count("kind")
	if err != nil {
		return nil, err
	}
	kinds := make([]string, 0, min(nkinds, maxPrealloc))
	for i := 0; i < nkinds; i++ {
		n, err := sr.count("kind name")
		if err != nil {
			return nil, err
		}
		if n > 1<<16 {
			return nil, fmt.Errorf("kind name length %d: %w", n, ErrCorruptDump)
		}
		name := make([]byte, n)
		if _, err := io.ReadFull(sr.r, name); err != nil {
			return nil, fmt.Errorf("reading kind name: %w", err)
		}
		kinds = append(kinds, string(name))
	}

	nobjects, err := sr.count("object")
	if err != nil {
		return nil, err
	}
	var addr uint64
	for i := 0; i < nobjects; i++ {
		delta, err := sr.uvarint("address")
		if err != nil {
			return nil, err
		}
		if delta == 0 {
			return nil, fmt.Errorf("object %d: zero address delta: %w", i, ErrCorruptDump)
		}
		addr += delta
		kind, err := sr.count("kind index")
		if err != nil {
			return nil, err
		}
		if kind >= len(kinds) {
			return nil, fmt.Errorf("object %#x: kind index %d of %d: %w", addr, kind, len(kinds), ErrCorruptDump)
		}
		size, err := sr.uvarint("size")
		if err != nil {
			return nil, err
		}
		nptrs, err := sr.count("pointer")
		if err != nil {
			return nil, err
		}
		ptrs := make([]graph.ObjID, 0, min(nptrs, maxPrealloc))
		for j := 0; j < nptrs; j++ {
			p, err := sr.uvarint("pointer")
			if err != nil {
				return nil, err
			}
			ptrs = append(ptrs, graph.ObjID(p))
		}
		d.AddObject(&graph.Object{ID: graph.ObjID(addr), Kind: kinds[kind], Size: size, Ptrs: ptrs})
	}

	nroots, err := sr.count("root")
	if err != nil {
		return nil, err
	}
	roots := graph.Roots{IDs: make([]graph.ObjID, 0, min(nroots, maxPrealloc))}
	for i := 0; i < nroots; i++ {
		id, err := sr.uvarint("root")
		if err != nil {
			return nil, err
		}
		roots.IDs = append(roots.IDs, graph.ObjID(id))
	}
	d.SetRoots(roots)
	return d, nil
}

// WriteSomdump writes d in the binary format.
func WriteSomdump(w io.Writer, d *Dump) error {
	bw := bufio.NewWriter(w)
	buf := []byte(somdumpMagic)
	buf = binary.AppendUvarint(buf, d.Epoch)
	buf = binary.AppendUvarint(buf, d.HeapSize)
	buf = binary.AppendUvarint(buf, d.Used)

	ids := graph.SortedIDs(d)
	kindIndex := make(map[string]uint64)
	var kinds bytes.Buffer
	for _, id := range ids {
		kind := d.GetObject(id).Kind
		if _, ok := kindIndex[kind]; ok {
			continue
		}
		kindIndex[kind] = uint64(len(kindIndex))
		kinds.Write(binary.AppendUvarint(nil, uint64(len(kind))))
		kinds.WriteString(kind)
	}
	buf = binary.AppendUvarint(buf, uint64(len(kindIndex)))
	buf = append(buf, kinds.Bytes()...)

	buf = binary.AppendUvarint(buf, uint64(len(ids)))
	var prev graph.ObjID
	for _, id := range ids {
		obj := d.GetObject(id)
		buf = binary.AppendUvarint(buf, uint64(id-prev))
		buf = binary.AppendUvarint(buf, kindIndex[obj.Kind])
		buf = binary.AppendUvarint(buf, obj.Size)
		buf = binary.AppendUvarint(buf, uint64(len(obj.Ptrs)))
		for _, p := range obj.Ptrs {
			buf = binary.AppendUvarint(buf, uint64(p))
		}
		prev = id
		if len(buf) >= 64<<10 {
			if _, err := bw.Write(buf); err != nil {
				return err
			}
			buf = buf[:0]
		}
	}

	roots := d.GetRoots().IDs
	buf = binary.AppendUvarint(buf, uint64(len(roots)))
	for _, id := range roots {
		buf = binary.AppendUvarint(buf, uint64(id))
	}
	if _, err := bw.Write(buf); err != nil {
		return err
	}
	return bw.Flush()
}
