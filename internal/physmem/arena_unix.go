//go:build unix

package physmem

import (
	"kernos/kernel/mem"

	"golang.org/x/sys/unix"
)

// allocate reserves an anonymous private mapping. Pages are only backed by
// host memory once they are touched so large arenas are cheap.
func allocate(size mem.Size) ([]byte, error) {
	return unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func release(data []byte) error {
	return unix.Munmap(data)
}
