package kfmt

import "io"

// ringBufferSize defines the size of the buffer that captures Printf output
// before a sink is attached. It must be a power of 2.
const ringBufferSize = 2048

// ringBuffer keeps the last ringBufferSize bytes written to it. Once full,
// new writes overwrite the oldest data.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ringBuffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Read reads up to len(p) bytes into p. It returns io.EOF once the buffered
// data has been drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	var avail int
	switch {
	case rb.rIndex == rb.wIndex:
		return 0, io.EOF
	case rb.rIndex < rb.wIndex:
		avail = rb.wIndex - rb.rIndex
	default:
		// data wraps around; read up to the end of the buffer first
		avail = ringBufferSize - rb.rIndex
	}

	n := copy(p, rb.buffer[rb.rIndex:rb.rIndex+avail])
	rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)
	return n, nil
}
