package kfmt

import "io"

// earlyBufferSize is the amount of output retained before an output sink is
// attached. Once full, the oldest bytes are overwritten.
const earlyBufferSize = 2048

// earlyBuffer keeps the most recent earlyBufferSize bytes of output produced
// before the SBI console is available.
type earlyBuffer struct {
	data [earlyBufferSize]byte

	// start is the index of the oldest buffered byte and size the number of
	// buffered bytes.
	start, size int
}

// Write implements io.Writer. It never fails.
func (b *earlyBuffer) Write(p []byte) (int, error) {
	for _, ch := range p {
		b.data[(b.start+b.size)%earlyBufferSize] = ch
		if b.size == earlyBufferSize {
			b.start = (b.start + 1) % earlyBufferSize
			continue
		}
		b.size++
	}

	return len(p), nil
}

// flushTo writes the buffered bytes to w, oldest first, and empties the
// buffer.
func (b *earlyBuffer) flushTo(w io.Writer) {
	if b.size == 0 {
		return
	}

	head := b.size
	if b.start+head > earlyBufferSize {
		head = earlyBufferSize - b.start
	}

	w.Write(b.data[b.start : b.start+head])
	if tail := b.size - head; tail != 0 {
		w.Write(b.data[:tail])
	}

	b.reset()
}

func (b *earlyBuffer) reset() {
	b.start, b.size = 0, 0
}
