package rle

import (
	"errors"
	"fmt"
)

// ErrOverflow indicates a fragment would write past the total ALPDU length
// announced by the START header.
var ErrOverflow = errors.New("fragment overflows announced ALPDU length")

// rasmBuffer is the byte arena holding one ALPDU being reconstructed from
// fragments. It is the dual of fragBuffer: preallocated at receiver
// construction, reused for every ALPDU on its fragment ID.
//
// Layout: buf[0:writeCursor] holds the bytes received so far;
// expectedEnd is the total announced by the START header.
type rasmBuffer struct {
	buf         []byte
	expectedEnd int
	writeCursor int
}

// newRasmBuffer allocates a reassembly arena of the maximum ALPDU size.
func newRasmBuffer() *rasmBuffer {
	return &rasmBuffer{buf: make([]byte, MaxALPDUSize)}
}

// reset prepares the arena for a new ALPDU of total bytes.
func (r *rasmBuffer) reset(total int) {
	r.expectedEnd = total
	r.writeCursor = 0
}

// appendBytes writes the next fragment. It refuses to write past the
// announced total.
func (r *rasmBuffer) appendBytes(b []byte) error {
	if r.writeCursor+len(b) > r.expectedEnd {
		return fmt.Errorf("%d bytes at offset %d, announced total %d: %w",
			len(b), r.writeCursor, r.expectedEnd, ErrOverflow)
	}
	copy(r.buf[r.writeCursor:], b)
	r.writeCursor += len(b)
	return nil
}

// complete reports whether exactly the announced total has been received.
func (r *rasmBuffer) complete() bool {
	return r.writeCursor == r.expectedEnd
}

// alpdu returns the bytes received so far. The slice stays valid until the
// next reset.
func (r *rasmBuffer) alpdu() []byte {
	return r.buf[:r.writeCursor]
}

// received returns the number of bytes received so far.
func (r *rasmBuffer) received() int {
	return r.writeCursor
}
