package rle

// fragBuffer is the byte arena holding one ALPDU being sliced into PPDUs.
// It is preallocated at transmitter construction and reused for every SDU
// on its fragment ID; the hot path never allocates.
//
// Layout: buf[0:alpduEnd] is the ALPDU ([ptype field?][SDU][CRC?]);
// buf[emitCursor:alpduEnd] is what remains to emit.
type fragBuffer struct {
	buf        []byte
	alpduEnd   int
	emitCursor int
}

// newFragBuffer allocates a fragmentation arena of the maximum ALPDU size.
func newFragBuffer() *fragBuffer {
	return &fragBuffer{buf: make([]byte, 0, MaxALPDUSize)}
}

// reset discards any ALPDU content and returns the arena to empty.
func (f *fragBuffer) reset() {
	f.buf = f.buf[:0]
	f.alpduEnd = 0
	f.emitCursor = 0
}

// append extends the ALPDU with b. The engine guarantees the total stays
// within MaxALPDUSize.
func (f *fragBuffer) append(b ...byte) {
	f.buf = append(f.buf, b...)
	f.alpduEnd = len(f.buf)
}

// setPrefix installs an already-built ALPDU prefix; used together with
// append to lay out [prefix][sdu][trailer] without intermediate copies.
func (f *fragBuffer) setPrefix(prefix []byte) {
	f.buf = append(f.buf[:0], prefix...)
	f.alpduEnd = len(f.buf)
}

// alpdu returns the whole ALPDU.
func (f *fragBuffer) alpdu() []byte {
	return f.buf[:f.alpduEnd]
}

// peekNext returns the next slice to emit, at most max bytes. The cursor
// advances only when the caller commits.
func (f *fragBuffer) peekNext(max int) []byte {
	end := f.emitCursor + max
	if end > f.alpduEnd {
		end = f.alpduEnd
	}
	return f.buf[f.emitCursor:end]
}

// commit advances the emit cursor after the caller copied n peeked bytes
// into a PPDU.
func (f *fragBuffer) commit(n int) {
	f.emitCursor += n
}

// remaining returns the number of ALPDU bytes not yet emitted.
func (f *fragBuffer) remaining() int {
	return f.alpduEnd - f.emitCursor
}

// total returns the ALPDU length.
func (f *fragBuffer) total() int {
	return f.alpduEnd
}
