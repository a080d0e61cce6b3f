// ABOUTME: Command interpreter of the heap inspector over a parsed dump
// ABOUTME: Each command prints to the configured writer; analyses are computed once and cached

package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/prateek/somheap/graph"
	"github.com/prateek/somheap/heapdump"
)

var errQuit = errors.New("quit")

var commands = []string{"dom", "garbage", "help", "obj", "paths", "quit", "retained", "roots", "stats"}

const helpText = `commands:
  stats              object count, sizes, live and garbage totals
  roots              root objects
  obj <addr>         one object and its references
  paths <addr> [n]   up to n (default 3) shortest paths from addr to a root
  retained [n]       top n (default 10) objects by retained size
  dom <addr>         dominator chain of addr up to the roots
  garbage            objects unreachable from the roots
  quit               leave
addresses may be decimal or 0x-prefixed hex`

type inspector struct {
	g   graph.Graph
	out io.Writer

	idom     map[graph.ObjID]graph.ObjID
	retained map[graph.ObjID]uint64
}

func newInspector(g graph.Graph, out io.Writer) *inspector {
	return &inspector{g: g, out: out}
}

func (in *inspector) dominators() map[graph.ObjID]graph.ObjID {
	if in.idom == nil {
		in.idom = graph.Dominators(in.g)
	}
	return in.idom
}

func (in *inspector) retainedSizes() map[graph.ObjID]uint64 {
	if in.retained == nil {
		in.retained = graph.RetainedSize(in.g)
	}
	return in.retained
}

// complete offers command names for liner's tab completion.
func complete(line string) []string {
	var out []string
	for _, c := range commands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c)
		}
	}
	return out
}

func parseAddr(s string) (graph.ObjID, error) {
	n, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return graph.ObjID(n), nil
}

func optionalCount(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad count %q", args[0])
	}
	return n, nil
}

// exec runs one command line. It returns errQuit when the session should end.
func (in *inspector) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "help", "?":
		fmt.Fprintln(in.out, helpText)
	case "quit", "exit":
		return errQuit
	case "stats":
		in.stats()
	case "roots":
		in.roots()
	case "garbage":
		in.garbage()
	case "obj", "paths", "dom":
		if len(args) == 0 {
			return fmt.Errorf("usage: %s <addr>", cmd)
		}
		id, err := parseAddr(args[0])
		if err != nil {
			return err
		}
		obj := in.g.GetObject(id)
		if obj == nil {
			return fmt.Errorf("no object at %#x", uint64(id))
		}
		switch cmd {
		case "obj":
			in.object(obj)
		case "paths":
			n, err := optionalCount(args[1:], 3)
			if err != nil {
				return err
			}
			in.paths(id, n)
		case "dom":
			in.dom(id)
		}
	case "retained":
		n, err := optionalCount(args, 10)
		if err != nil {
			return err
		}
		in.top(n)
	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
	return nil
}

func (in *inspector) describe(id graph.ObjID) string {
	if obj := in.g.GetObject(id); obj != nil {
		return fmt.Sprintf("%#x %s", uint64(id), obj.Kind)
	}
	return fmt.Sprintf("%#x <missing>", uint64(id))
}

func (in *inspector) stats() {
	var total, live uint64
	reachable := graph.Reachable(in.g)
	in.g.ForEachObject(func(obj *graph.Object) {
		total += obj.Size
		if reachable[obj.ID] {
			live += obj.Size
		}
	})
	if d, ok := in.g.(*heapdump.Dump); ok {
		fmt.Fprintf(in.out, "epoch:     %d\nheap size: %d\nused:      %d\n", d.Epoch, d.HeapSize, d.Used)
	}
	fmt.Fprintf(in.out, "objects:   %d (%d bytes)\n", in.g.NumObjects(), total)
	fmt.Fprintf(in.out, "roots:     %d\n", len(in.g.GetRoots().IDs))
	fmt.Fprintf(in.out, "live:      %d objects (%d bytes)\n", len(reachable), live)
	fmt.Fprintf(in.out, "garbage:   %d objects (%d bytes)\n", in.g.NumObjects()-len(reachable), total-live)
	if dangling := graph.Dangling(in.g); len(dangling) > 0 {
		fmt.Fprintf(in.out, "dangling:  %d objects hold references to missing addresses\n", len(dangling))
	}
}

func (in *inspector) roots() {
	for _, id := range in.g.GetRoots().IDs {
		fmt.Fprintln(in.out, in.describe(id))
	}
}

func (in *inspector) garbage() {
	dead := graph.Garbage(in.g)
	for _, id := range dead {
		fmt.Fprintf(in.out, "%s (%d bytes)\n", in.describe(id), in.g.GetObject(id).Size)
	}
	fmt.Fprintf(in.out, "%d unreachable objects\n", len(dead))
}

func (in *inspector) object(obj *graph.Object) {
	fmt.Fprintf(in.out, "%s, %d bytes, retains %d bytes\n", in.describe(obj.ID), obj.Size, in.retainedSizes()[obj.ID])
	for i, p := range obj.Ptrs {
		fmt.Fprintf(in.out, "  [%d] -> %s\n", i, in.describe(p))
	}
	referrers := graph.BuildReverseEdges(in.g)[obj.ID]
	if slices.Contains(in.g.GetRoots().IDs, obj.ID) {
		fmt.Fprintln(in.out, "  held by a root slot")
	}
	for _, r := range referrers {
		fmt.Fprintf(in.out, "  <- %s\n", in.describe(r))
	}
}

func (in *inspector) paths(id graph.ObjID, n int) {
	paths := graph.PathsToRoots(in.g, id, n)
	if len(paths) == 0 {
		fmt.Fprintln(in.out, "unreachable")
		return
	}
	for i, p := range paths {
		parts := make([]string, len(p.IDs))
		for j, step := range p.IDs {
			parts[j] = in.describe(step)
		}
		fmt.Fprintf(in.out, "%d: %s\n", i+1, strings.Join(parts, " <- "))
	}
}

func (in *inspector) top(n int) {
	for _, r := range graph.TopRetained(in.g, n) {
		fmt.Fprintf(in.out, "%10d  %s\n", r.Size, in.describe(r.ID))
	}
}

func (in *inspector) dom(id graph.ObjID) {
	idom := in.dominators()
	if _, ok := idom[id]; !ok {
		fmt.Fprintln(in.out, "unreachable")
		return
	}
	for _, step := range graph.DominatorPath(idom, id) {
		if step == 0 {
			fmt.Fprintln(in.out, "<roots>")
			continue
		}
		fmt.Fprintln(in.out, in.describe(step))
	}
}
