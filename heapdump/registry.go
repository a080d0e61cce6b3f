// ABOUTME: Registry for heap dump parsers
// ABOUTME: Selects the parser for a dump by sniffing its first bytes

package heapdump

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/prateek/somheap/graph"
)

var (
	// ErrNoParser is returned when no parser can handle the dump format
	ErrNoParser = errors.New("no parser found for dump format")
)

// sniffSize is how much of a dump parsers see when asked CanParse.
const sniffSize = 4096

type parserRegistry struct {
	mu      sync.RWMutex
	parsers []Parser
}

var registry = &parserRegistry{}

// Register adds a parser. Parsers are tried in registration order.
func Register(p Parser) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.parsers = append(registry.parsers, p)
}

// Open reads a heap dump with the first registered parser that recognizes it.
func Open(r io.Reader) (graph.Graph, error) {
	prefix := make([]byte, sniffSize)
	n, err := io.ReadFull(r, prefix)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	prefix = prefix[:n]

	registry.mu.RLock()
	defer registry.mu.RUnlock()

	for _, p := range registry.parsers {
		if p.CanParse(bytes.NewReader(prefix)) {
			return p.Parse(io.MultiReader(bytes.NewReader(prefix), r))
		}
	}
	return nil, ErrNoParser
}

func init() {
	Register(&SomdumpParser{})
	Register(&JSONParser{})
}
