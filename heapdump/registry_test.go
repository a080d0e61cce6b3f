// ABOUTME: Tests for the parser registry
// ABOUTME: Validates registration order and format sniffing

package heapdump

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/prateek/somheap/graph"
)

type mockParser struct {
	name string
}

func (p *mockParser) CanParse(r io.Reader) bool {
	buf := make([]byte, 100)
	n, _ := r.Read(buf)
	return strings.Contains(string(buf[:n]), p.name)
}

func (p *mockParser) Parse(r io.Reader) (graph.Graph, error) {
	g := graph.NewMemGraph()
	g.AddObject(&graph.Object{ID: 1, Kind: p.name})
	return g, nil
}

// isolateRegistry gives the test an empty registry and restores the real one afterwards.
func isolateRegistry(t *testing.T) {
	t.Helper()
	saved := registry
	registry = &parserRegistry{}
	t.Cleanup(func() { registry = saved })
}

func TestOpenSelectsFirstMatchingParser(t *testing.T) {
	isolateRegistry(t)
	Register(&mockParser{name: "json"})
	Register(&mockParser{name: "bin"})
	Register(&mockParser{name: "bin"}) // shadowed by the first

	tests := []struct {
		name     string
		content  string
		wantKind string
		wantErr  error
	}{
		{name: "first parser", content: "json dump data", wantKind: "json"},
		{name: "second parser", content: "bin dump data", wantKind: "bin"},
		{name: "unknown format", content: "unknown format", wantErr: ErrNoParser},
		{name: "empty", content: "", wantErr: ErrNoParser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Open(strings.NewReader(tt.content))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Open() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := g.GetObject(1).Kind; got != tt.wantKind {
				t.Errorf("parsed by %q, want %q", got, tt.wantKind)
			}
		})
	}
}

type recordingParser struct {
	got []byte
}

func (p *recordingParser) CanParse(r io.Reader) bool { return true }

func (p *recordingParser) Parse(r io.Reader) (graph.Graph, error) {
	var err error
	p.got, err = io.ReadAll(r)
	return graph.NewMemGraph(), err
}

func TestOpenReplaysSniffedPrefix(t *testing.T) {
	isolateRegistry(t)
	p := &recordingParser{}
	Register(p)

	data := bytes.Repeat([]byte("0123456789"), sniffSize/5)
	if _, err := Open(bytes.NewReader(data)); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(p.got, data) {
		t.Errorf("parser saw %d bytes, want the whole %d-byte dump", len(p.got), len(data))
	}
}

func TestThreadSafeRegistry(t *testing.T) {
	isolateRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			Register(&mockParser{name: string(rune('a' + id))})
		}(i)
	}
	wg.Wait()

	if len(registry.parsers) != 10 {
		t.Errorf("Expected 10 parsers after concurrent registration, got %d", len(registry.parsers))
	}
}

func TestDefaultParsers(t *testing.T) {
	d := sampleDump()
	for name, write := range map[string]func(io.Writer, *Dump) error{
		"json":    WriteJSON,
		"somdump": WriteSomdump,
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := write(&buf, d); err != nil {
				t.Fatalf("write failed: %v", err)
			}
			g, err := Open(&buf)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if g.NumObjects() != d.NumObjects() {
				t.Errorf("NumObjects() = %d, want %d", g.NumObjects(), d.NumObjects())
			}
		})
	}
}
