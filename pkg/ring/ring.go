// Package ring implements a fixed-size ring buffer for int16 audio
// samples. The listener keeps the most recent pre-onset audio in one so
// that the start of an utterance is not lost while the voice gate is
// still deciding whether anyone is speaking.
package ring

type Buffer struct {
	samples []int16
	head    int
	filled  bool
}

func New(size int) *Buffer {
	return &Buffer{
		samples: make([]int16, size),
	}
}

// Add appends samples, overwriting the oldest ones once the buffer is full.
func (b *Buffer) Add(chunk []int16) {
	for _, s := range chunk {
		b.samples[b.head] = s
		b.head = (b.head + 1) % len(b.samples)
		if b.head == 0 {
			b.filled = true
		}
	}
}

// Read returns the buffered samples in arrival order, oldest first.
// Before the buffer has wrapped only the samples actually written are
// returned.
func (b *Buffer) Read() []int16 {
	if !b.filled {
		out := make([]int16, b.head)
		copy(out, b.samples[:b.head])
		return out
	}

	out := make([]int16, len(b.samples))
	for i := range b.samples {
		out[i] = b.samples[(b.head+i)%len(b.samples)]
	}
	return out
}

func (b *Buffer) Clear() {
	b.head = 0
	b.filled = false
	for i := range b.samples {
		b.samples[i] = 0
	}
}
