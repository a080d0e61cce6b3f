// ABOUTME: Tests for the root package verifying version information
// ABOUTME: End-to-end checks across backends live in integration_test.go

package somheap_test

import (
	"strings"
	"testing"

	"github.com/prateek/somheap"
)

func TestVersion(t *testing.T) {
	if somheap.Version == "" {
		t.Error("Version constant should not be empty")
	}
	if !strings.HasPrefix(somheap.Version, "0.") {
		t.Errorf("Version should start with %q, got %q", "0.", somheap.Version)
	}
}
