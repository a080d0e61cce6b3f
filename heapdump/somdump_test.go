// ABOUTME: Tests for the binary dump format
// ABOUTME: Covers the writer/parser pair, corrupt input and fuzzing of the parser

package heapdump

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prateek/somheap/graph"
)

func writeSomdump(t testing.TB, d *Dump) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteSomdump(&buf, d))
	return buf.Bytes()
}

func TestSomdumpWriteThenParse(t *testing.T) {
	d := sampleDump()
	data := writeSomdump(t, d)
	assert.True(t, (&SomdumpParser{}).CanParse(bytes.NewReader(data)))

	g, err := (&SomdumpParser{}).Parse(bytes.NewReader(data))
	require.NoError(t, err)
	got := g.(*Dump)
	assert.Equal(t, [3]uint64{3, 4096, 160}, [3]uint64{got.Epoch, got.HeapSize, got.Used})
	if diff := cmp.Diff(graphOf(t, d), graphOf(t, got)); diff != "" {
		t.Errorf("objects mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, d.GetRoots(), got.GetRoots())
}

func TestSomdumpIsSmallerThanJSON(t *testing.T) {
	d := sampleDump()
	var js bytes.Buffer
	require.NoError(t, WriteJSON(&js, d))
	assert.Less(t, len(writeSomdump(t, d)), js.Len()/2)
}

func TestSomdumpEmpty(t *testing.T) {
	d := newDump()
	d.SetRoots(graph.Roots{})
	g, err := (&SomdumpParser{}).Parse(bytes.NewReader(writeSomdump(t, d)))
	require.NoError(t, err)
	assert.Equal(t, 0, g.NumObjects())
	assert.Empty(t, g.GetRoots().IDs)
}

func TestSomdumpCanParse(t *testing.T) {
	p := &SomdumpParser{}
	assert.False(t, p.CanParse(bytes.NewReader([]byte("SOMDUMP"))))
	assert.False(t, p.CanParse(bytes.NewReader([]byte(`{"objects": []}`))))
	assert.True(t, p.CanParse(bytes.NewReader([]byte(somdumpMagic))))
}

func TestSomdumpCorrupt(t *testing.T) {
	valid := writeSomdump(t, sampleDump())

	header := func(vals ...uint64) []byte {
		b := []byte(somdumpMagic)
		for _, v := range vals {
			b = binary.AppendUvarint(b, v)
		}
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "bad magic", data: append([]byte("SOMDUMP\x02"), valid[8:]...), want: ErrCorruptDump},
		{name: "truncated", data: valid[:len(valid)-1], want: io.ErrUnexpectedEOF},
		{name: "header only", data: []byte(somdumpMagic), want: io.ErrUnexpectedEOF},
		// epoch, heap size, used, one kind "A", one object at delta 0
		{name: "zero address delta", data: header(0, 0, 0, 1, 1, 'A', 1, 0), want: ErrCorruptDump},
		// one object referring to kind 5 of 1
		{name: "kind out of range", data: header(0, 0, 0, 1, 1, 'A', 1, 8, 5), want: ErrCorruptDump},
		{name: "huge count", data: header(0, 0, 0, 1<<50), want: ErrCorruptDump},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&SomdumpParser{}).Parse(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "error %v does not match %v", err, tt.want)
		})
	}
}

func FuzzSomdumpParser(f *testing.F) {
	f.Add(writeSomdump(f, sampleDump()))
	f.Add(writeSomdump(f, newDump()))
	f.Add([]byte(somdumpMagic))

	f.Fuzz(func(t *testing.T, data []byte) {
		g, err := (&SomdumpParser{}).Parse(bytes.NewReader(data))
		if err != nil {
			return
		}
		// whatever parses must survive a rewrite unchanged
		d := g.(*Dump)
		again, err := (&SomdumpParser{}).Parse(bytes.NewReader(writeSomdump(t, d)))
		if err != nil {
			t.Fatalf("reparse failed: %v", err)
		}
		if again.NumObjects() != d.NumObjects() {
			t.Fatalf("reparse has %d objects, want %d", again.NumObjects(), d.NumObjects())
		}
	})
}
