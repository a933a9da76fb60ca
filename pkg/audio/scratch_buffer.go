package audio

// ScratchBuffer is growable staging storage for variable-length frames.
// Capacity doubles on demand and is never released; Count marks the valid
// prefix. Not safe for concurrent use.
type ScratchBuffer[T any] struct {
	data  []T
	count int
}

// NewScratchBuffer creates a scratch buffer with the given initial capacity.
func NewScratchBuffer[T any](capacity int) *ScratchBuffer[T] {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ScratchBuffer[T]{data: make([]T, capacity)}
}

// Ensure grows the backing storage so at least n elements fit, keeping the
// existing contents, and returns the first n elements.
func (b *ScratchBuffer[T]) Ensure(n int) []T {
	if n > len(b.data) {
		size := max(len(b.data), 1)
		for size < n {
			size *= 2
		}
		grown := make([]T, size)
		copy(grown, b.data[:b.count])
		b.data = grown
	}
	return b.data[:n]
}

// Write appends src after the valid prefix.
func (b *ScratchBuffer[T]) Write(src []T) {
	b.Ensure(b.count + len(src))
	copy(b.data[b.count:], src)
	b.count += len(src)
}

// Read returns the valid prefix. The slice aliases internal storage and is
// only valid until the next mutation.
func (b *ScratchBuffer[T]) Read() []T {
	return b.data[:b.count]
}

// Memory returns the whole backing storage, for callers that fill it in
// place and then call SetCount.
func (b *ScratchBuffer[T]) Memory() []T {
	return b.data
}

// SetCount sets the valid prefix length, clamped to the capacity.
func (b *ScratchBuffer[T]) SetCount(n int) {
	b.count = min(max(n, 0), len(b.data))
}

func (b *ScratchBuffer[T]) Count() int {
	return b.count
}

func (b *ScratchBuffer[T]) Capacity() int {
	return len(b.data)
}

// Clear drops the contents; capacity is kept.
func (b *ScratchBuffer[T]) Clear() {
	b.count = 0
}
