// ABOUTME: Space backing memory where mmap is unavailable
// ABOUTME: Falls back to Go-managed byte slices for both backing kinds

//go:build !unix

package heap

func reserve(size int, _ string) ([]byte, func() error, error) {
	return make([]byte, size), func() error { return nil }, nil
}
