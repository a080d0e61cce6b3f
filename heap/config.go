// ABOUTME: Manager configuration: heap size, stress mode, collection plan
// ABOUTME: Loads YAML or JSON config files and applies environment feature toggles

package heap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// DefaultHeapSize is the capacity of each of the two spaces.
const DefaultHeapSize = 256 << 20

// MinHeapSize is the smallest space that can hold a header and one word.
const MinHeapSize = 2 * WordSize

// Collection plans.
const (
	PlanSemiSpace = "semispace"
	PlanNoGC      = "nogc"
)

// Backing memory sources.
const (
	BackingMmap = "mmap"
	BackingGo   = "go"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvHeapSize = "SOM_HEAP_SIZE"
	EnvStress   = "SOM_GC_STRESS"
	EnvPlan     = "SOM_GC_PLAN"
	EnvVerify   = "SOM_GC_VERIFY"
)

// Config is read once when the Manager is created.
type Config struct {
	// HeapSize is the size in bytes of each space. The manager reserves twice this.
	HeapSize int `yaml:"heap_size" json:"heap_size"`

	// Stress forces a full collection before every allocation.
	Stress bool `yaml:"stress" json:"stress"`

	// Plan selects the collector: "semispace" or "nogc".
	Plan string `yaml:"plan" json:"plan"`

	// Verify walks the heap after every collection.
	Verify bool `yaml:"verify" json:"verify"`

	// Backing selects where space memory comes from: "mmap" or "go".
	Backing string `yaml:"backing" json:"backing"`
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig() Config {
	return Config{
		HeapSize: DefaultHeapSize,
		Plan:     PlanSemiSpace,
		Backing:  BackingMmap,
	}
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var issues []string
	if c.HeapSize < MinHeapSize {
		issues = append(issues, fmt.Sprintf("heap_size must be at least %d bytes, got %d", MinHeapSize, c.HeapSize))
	}
	if int64(c.HeapSize) > maxSpaceSize {
		issues = append(issues, fmt.Sprintf("heap_size must be at most %d bytes, got %d", int64(maxSpaceSize), c.HeapSize))
	}
	if c.HeapSize%WordSize != 0 {
		issues = append(issues, fmt.Sprintf("heap_size must be a multiple of %d, got %d", WordSize, c.HeapSize))
	}
	switch c.Plan {
	case PlanSemiSpace, PlanNoGC:
	default:
		issues = append(issues, fmt.Sprintf("unknown plan %q", c.Plan))
	}
	switch c.Backing {
	case BackingMmap, BackingGo:
	default:
		issues = append(issues, fmt.Sprintf("unknown backing %q", c.Backing))
	}
	if len(issues) > 0 {
		return &ConfigError{Issues: issues}
	}
	return nil
}

// LoadConfig reads a YAML (.yaml, .yml) or JSON (.json) file. Fields the file leaves
// unset take their default values.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("heap: config: empty path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("heap: config: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		cfg, err = parseYAMLConfig(data)
	case ".json":
		cfg, err = parseJSONConfig(data)
	default:
		return Config{}, fmt.Errorf("heap: config: unsupported extension %q", ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("heap: config: parse %s: %w", path, err)
	}

	if err := mergo.Merge(&cfg, DefaultConfig()); err != nil {
		return Config{}, fmt.Errorf("heap: config: defaults: %w", err)
	}
	return cfg, nil
}

// yamlSize is a heap_size scalar in YAML. It takes the same suffixes as the JSON and
// environment forms.
type yamlSize int

func (s *yamlSize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: heap_size must be a scalar", node.Line)
	}
	n, err := parseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: heap_size: %w", node.Line, err)
	}
	*s = yamlSize(n)
	return nil
}

// yamlConfig mirrors Config for decoding.
type yamlConfig struct {
	HeapSize yamlSize `yaml:"heap_size"`
	Stress   bool     `yaml:"stress"`
	Plan     string   `yaml:"plan"`
	Verify   bool     `yaml:"verify"`
	Backing  string   `yaml:"backing"`
}

func parseYAMLConfig(data []byte) (Config, error) {
	var doc yamlConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return Config{
		HeapSize: int(doc.HeapSize),
		Stress:   doc.Stress,
		Plan:     doc.Plan,
		Verify:   doc.Verify,
		Backing:  doc.Backing,
	}, nil
}

func parseJSONConfig(data []byte) (Config, error) {
	var cfg Config

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return cfg, nil
	}
	if !gjson.ValidBytes(data) {
		return cfg, fmt.Errorf("invalid json: %q", data)
	}

	doc := gjson.ParseBytes(data)
	if size := doc.Get("heap_size"); size.Exists() {
		n, err := parseSize(size.String())
		if err != nil {
			return cfg, fmt.Errorf("heap_size: %w", err)
		}
		cfg.HeapSize = n
	}
	cfg.Stress = doc.Get("stress").Bool()
	cfg.Verify = doc.Get("verify").Bool()
	cfg.Plan = doc.Get("plan").String()
	cfg.Backing = doc.Get("backing").String()
	return cfg, nil
}

// ConfigFromEnv returns base with the runtime's environment toggles applied.
func ConfigFromEnv(base Config) (Config, error) {
	return configFromLookup(base, os.LookupEnv)
}

func configFromLookup(base Config, lookup func(string) (string, bool)) (Config, error) {
	cfg := base
	if s, ok := lookup(EnvHeapSize); ok {
		n, err := parseSize(s)
		if err != nil {
			return base, fmt.Errorf("heap: %s: %w", EnvHeapSize, err)
		}
		cfg.HeapSize = n
	}
	if s, ok := lookup(EnvStress); ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return base, fmt.Errorf("heap: %s: %w", EnvStress, err)
		}
		cfg.Stress = b
	}
	if s, ok := lookup(EnvVerify); ok {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return base, fmt.Errorf("heap: %s: %w", EnvVerify, err)
		}
		cfg.Verify = b
	}
	if s, ok := lookup(EnvPlan); ok {
		cfg.Plan = strings.ToLower(strings.TrimSpace(s))
	}
	return cfg, nil
}

// parseSize accepts a byte count with an optional K, M or G suffix.
func parseSize(s string) (int, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimSuffix(s, "B")
	mult := 1
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1<<10, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1<<20, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		mult, s = 1<<30, strings.TrimSuffix(s, "G")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %d", n)
	}
	if n > math.MaxInt/mult {
		return 0, fmt.Errorf("size %d x %d overflows", n, mult)
	}
	return n * mult, nil
}
