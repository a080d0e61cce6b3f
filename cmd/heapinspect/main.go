// ABOUTME: Interactive heap inspector for somheap dumps
// ABOUTME: Loads a dump (or produces one by running a demo workload) and answers queries in a REPL

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/prateek/somheap"
	"github.com/prateek/somheap/graph"
	"github.com/prateek/somheap/heap"
	"github.com/prateek/somheap/heapdump"
	"github.com/prateek/somheap/mutator/bytecode"
	"github.com/prateek/somheap/mutator/treewalk"
)

const (
	appName     = "heapinspect"
	historyFile = ".heapinspect_history"
	prompt      = "heap> "
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	demo := fs.String("demo", "", "run a workload on the `backend` (treewalk or bytecode) and inspect its heap")
	configPath := fs.String("config", "", "heap configuration `file` (yaml or json) for -demo")
	write := fs.String("write", "", "also write the dump to `file` (.json for JSON, anything else binary)")
	script := fs.String("c", "", "run `commands` separated by ';' instead of the REPL")
	verbose := fs.Bool("v", false, "log heap activity of -demo to stderr")
	version := fs.Bool("version", false, "print the version and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: %s [flags] <dump>\n       %s -demo treewalk|bytecode [flags]\n", appName, appName)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *version {
		fmt.Fprintf(stdout, "%s %s\n", appName, somheap.Version)
		return 0
	}

	var (
		g   graph.Graph
		err error
	)
	switch {
	case *demo != "":
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if *verbose {
			logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
		g, err = runDemo(*demo, *configPath, logger)
	case fs.NArg() == 1:
		g, err = openDump(fs.Arg(0))
	default:
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}

	if *write != "" {
		if err := writeDump(*write, g); err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", appName, err)
			return 1
		}
	}

	in := newInspector(g, stdout)
	if *script != "" {
		for _, line := range strings.Split(*script, ";") {
			if err := in.exec(line); err != nil {
				if errors.Is(err, errQuit) {
					return 0
				}
				fmt.Fprintf(stderr, "%s: %v\n", appName, err)
				return 1
			}
		}
		return 0
	}
	if stdin != os.Stdin {
		return readCommands(in, stdin, stderr)
	}
	return repl(in, stderr)
}

func openDump(path string) (graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := heapdump.Open(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func writeDump(path string, g graph.Graph) error {
	d, ok := g.(*heapdump.Dump)
	if !ok {
		return fmt.Errorf("write %s: dump has no heap metadata", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = heapdump.WriteJSON(f, d)
	} else {
		err = heapdump.WriteSomdump(f, d)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// demoInput is sorted by the demo workload. The heap is snapshotted before any
// collection so the dump still holds the sort's garbage.
var demoInput = []int64{42, -7, 19, 3, 3, 88, 0, -51, 12, 7}

func runDemo(backend, configPath string, logger *slog.Logger) (graph.Graph, error) {
	cfg := heap.DefaultConfig()
	cfg.HeapSize = 1 << 20
	if configPath != "" {
		var err error
		if cfg, err = heap.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}
	cfg, err := heap.ConfigFromEnv(cfg)
	if err != nil {
		return nil, err
	}

	var snap *heap.Snapshot
	err = heap.Run(cfg, func(h *heap.Manager) error {
		var sorted []int64
		var err error
		switch backend {
		case "treewalk":
			m := treewalk.New(h, treewalk.WithLogger(logger))
			defer m.Close()
			sorted, err = treewalk.BubbleSort(m, demoInput)
		case "bytecode":
			m := bytecode.New(h, bytecode.WithLogger(logger))
			defer m.Close()
			sorted, err = bytecode.BubbleSort(m, demoInput)
		default:
			return fmt.Errorf("unknown backend %q", backend)
		}
		if err != nil {
			return err
		}
		logger.Info("demo finished", "backend", backend, "sorted", sorted, "stats", h.Stats())
		snap = h.Snapshot()
		return nil
	}, heap.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return heapdump.FromSnapshot(snap), nil
}

// readCommands runs commands from a non-terminal input, one per line.
func readCommands(in *inspector, r io.Reader, stderr io.Writer) int {
	data, err := io.ReadAll(r)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", appName, err)
		return 1
	}
	status := 0
	for _, line := range strings.Split(string(data), "\n") {
		if err := in.exec(line); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			fmt.Fprintf(stderr, "%s: %v\n", appName, err)
			status = 1
		}
	}
	return status
}

func repl(in *inspector, stderr io.Writer) int {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(complete)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Fprintf(in.out, "%s %s, type help for commands\n", appName, somheap.Version)
	for {
		line, err := ln.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(in.out)
				return 0
			}
			fmt.Fprintf(stderr, "%s: %v\n", appName, err)
			return 1
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)
		if err := in.exec(line); err != nil {
			if errors.Is(err, errQuit) {
				return 0
			}
			fmt.Fprintf(stderr, "%v\n", err)
		}
	}
}
