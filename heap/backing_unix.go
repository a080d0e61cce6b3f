// ABOUTME: Space backing memory on unix: anonymous private mappings
// ABOUTME: Pages are returned to the OS with munmap when the manager is released

//go:build unix

package heap

import "golang.org/x/sys/unix"

func reserve(size int, backing string) ([]byte, func() error, error) {
	if backing == BackingGo {
		return make([]byte, size), func() error { return nil }, nil
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return mem, func() error { return unix.Munmap(mem) }, nil
}
