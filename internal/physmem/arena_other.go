//go:build !unix

package physmem

import "kernos/kernel/mem"

func allocate(size mem.Size) ([]byte, error) {
	return make([]byte, size), nil
}

func release(_ []byte) error {
	return nil
}
