// ABOUTME: JSON heap dump format: writer and parser
// ABOUTME: Human-readable dumps for tests and for diffing small heaps by hand

package heapdump

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"github.com/prateek/somheap/graph"
)

const jsonFormat = "somheap-json/1"

// JSONParser reads dumps written by WriteJSON.
type JSONParser struct{}

var _ Parser = (*JSONParser)(nil)

type jsonDump struct {
	Format   string        `json:"format"`
	Epoch    uint64        `json:"epoch"`
	HeapSize uint64        `json:"heap_size"`
	Used     uint64        `json:"used"`
	Objects  []jsonObject  `json:"objects"`
	Roots    []graph.ObjID `json:"roots"`
}

type jsonObject struct {
	Addr graph.ObjID   `json:"addr"`
	Kind string        `json:"kind"`
	Size uint64        `json:"size"`
	Ptrs []graph.ObjID `json:"ptrs"`
}

// CanParse accepts a JSON document whose format field names this format, or, lacking
// one, that has an objects array. The prefix may be cut mid-document.
func (p *JSONParser) CanParse(r io.Reader) bool {
	buf, err := io.ReadAll(io.LimitReader(r, sniffSize))
	if err != nil || len(buf) == 0 {
		return false
	}
	if format := gjson.GetBytes(buf, "format"); format.Exists() {
		return format.String() == jsonFormat
	}
	return gjson.GetBytes(buf, "objects").IsArray()
}

// Parse implements Parser.
func (p *JSONParser) Parse(r io.Reader) (graph.Graph, error) {
	var dump jsonDump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return nil, fmt.Errorf("decoding JSON dump: %w", err)
	}

	d := newDump()
	d.Epoch, d.HeapSize, d.Used = dump.Epoch, dump.HeapSize, dump.Used
	for i, obj := range dump.Objects {
		if obj.Addr == 0 {
			return nil, fmt.Errorf("object at index %d has no address", i)
		}
		ptrs := obj.Ptrs
		if ptrs == nil {
			ptrs = []graph.ObjID{}
		}
		d.AddObject(&graph.Object{ID: obj.Addr, Kind: obj.Kind, Size: obj.Size, Ptrs: ptrs})
	}
	roots := graph.Roots{IDs: dump.Roots}
	if roots.IDs == nil {
		roots.IDs = []graph.ObjID{}
	}
	d.SetRoots(roots)
	return d, nil
}

// WriteJSON writes d in address order.
func WriteJSON(w io.Writer, d *Dump) error {
	dump := jsonDump{
		Format:   jsonFormat,
		Epoch:    d.Epoch,
		HeapSize: d.HeapSize,
		Used:     d.Used,
		Objects:  make([]jsonObject, 0, d.NumObjects()),
		Roots:    d.GetRoots().IDs,
	}
	for _, id := range graph.SortedIDs(d) {
		obj := d.GetObject(id)
		dump.Objects = append(dump.Objects, jsonObject{Addr: obj.ID, Kind: obj.Kind, Size: obj.Size, Ptrs: obj.Ptrs})
	}
	if dump.Roots == nil {
		dump.Roots = []graph.ObjID{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(dump); err != nil {
		return fmt.Errorf("encoding JSON dump: %w", err)
	}
	return nil
}
