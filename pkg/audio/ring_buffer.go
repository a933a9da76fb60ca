// Package audio provides the sample-level building blocks of the voice client.
//
// RingBuffer implements a fixed-capacity circular buffer over samples.
// It is used for capture staging, encoder staging and pre-roll buffering.
//
// Main features:
//   - Fixed capacity chosen at construction, never reallocated
//   - Two overflow policies, fixed per instance (Bounded rejects, Overwrite drops oldest)
//   - Lock-free for exactly one producer and one consumer goroutine
//   - Non-destructive ReadAt peek for spectrum taps
//
// Usage:
//
//	rb := NewPCMRingBuffer(16000, 300, Bounded) // 300ms at 16kHz
//	if !rb.Write(frame) {
//	    // dropped: caller decides
//	}
//	rb.Read(out)
package audio

import (
	"sync/atomic"
)

// OverflowPolicy decides what Write does when the buffer lacks room.
type OverflowPolicy int

const (
	// Bounded rejects a write that does not fit, without touching the buffer.
	Bounded OverflowPolicy = iota
	// Overwrite drops the oldest samples to make room. Writes that drop data
	// move the read cursor, so producer and consumer must share one goroutine.
	Overwrite
)

func (p OverflowPolicy) String() string {
	switch p {
	case Bounded:
		return "Bounded"
	case Overwrite:
		return "Overwrite"
	default:
		return "Unknown"
	}
}

// RingBuffer is a fixed-capacity circular buffer of samples.
//
// The cursors are running totals; positions are taken modulo capacity. The
// producer only advances written and the consumer only advances read, which
// keeps the Bounded policy safe for one writer and one reader without a lock.
type RingBuffer[T any] struct {
	data     []T
	capacity int
	policy   OverflowPolicy

	written atomic.Uint64
	read    atomic.Uint64
}

// NewRingBuffer creates a ring buffer holding capacity samples.
func NewRingBuffer[T any](capacity int, policy OverflowPolicy) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
		policy:   policy,
	}
}

// NewPCMRingBuffer creates a 16-bit sample ring buffer for the given duration.
// sampleRate: audio sample rate in Hz (e.g., 16000)
// durationMs: buffer duration in milliseconds (e.g., 300 for 300ms)
func NewPCMRingBuffer(sampleRate, durationMs int, policy OverflowPolicy) *RingBuffer[int16] {
	return NewRingBuffer[int16](sampleRate*durationMs/1000, policy)
}

// Write copies src at the write cursor, wrapping at capacity.
// Under Bounded it returns false, and writes nothing, when src does not fit.
func (rb *RingBuffer[T]) Write(src []T) bool {
	n := len(src)
	if n == 0 {
		return true
	}

	w := rb.written.Load()
	r := rb.read.Load()
	free := rb.capacity - int(w-r)

	if n > free {
		if rb.policy == Bounded {
			return false
		}
		// Overwrite: keep only the newest capacity samples
		if n > rb.capacity {
			src = src[n-rb.capacity:]
			w += uint64(n - rb.capacity)
			n = rb.capacity
		}
		// 读指针推进到 end-capacity，w 可能已随裁剪前移
		if end := w + uint64(n); end-r > uint64(rb.capacity) {
			rb.read.Store(end - uint64(rb.capacity))
		}
	}

	pos := int(w % uint64(rb.capacity))
	first := copy(rb.data[pos:], src)
	if first < n {
		copy(rb.data, src[first:])
	}
	rb.written.Store(w + uint64(n))
	return true
}

// Read copies exactly len(dst) samples and advances the read cursor.
// It returns false, consuming nothing, if fewer samples are buffered.
func (rb *RingBuffer[T]) Read(dst []T) bool {
	n := len(dst)
	if n == 0 || rb.Count() < n {
		return false
	}
	rb.copyOut(rb.read.Load(), dst)
	rb.read.Add(uint64(n))
	return true
}

// ReadPadded copies up to len(dst) samples and zero-fills the remainder.
// It returns the number of real samples copied. Fixed-cadence consumers such
// as device callbacks use it so a shortfall plays as silence.
func (rb *RingBuffer[T]) ReadPadded(dst []T) int {
	n := min(rb.Count(), len(dst))
	if n > 0 {
		rb.copyOut(rb.read.Load(), dst[:n])
		rb.read.Add(uint64(n))
	}
	var zero T
	for i := n; i < len(dst); i++ {
		dst[i] = zero
	}
	return n
}

// ReadAt peeks len(dst) samples starting at absolute buffer position pos
// (taken modulo capacity). Cursors are not moved.
func (rb *RingBuffer[T]) ReadAt(pos int, dst []T) bool {
	if len(dst) == 0 || len(dst) > rb.capacity {
		return false
	}
	rb.copyOut(uint64(Repeat(pos, rb.capacity)), dst)
	return true
}

func (rb *RingBuffer[T]) copyOut(from uint64, dst []T) {
	pos := int(from % uint64(rb.capacity))
	first := copy(dst, rb.data[pos:])
	if first < len(dst) {
		copy(dst[first:], rb.data)
	}
}

// Clear resets both cursors. Storage is kept.
// Only call it while neither side is active.
func (rb *RingBuffer[T]) Clear() {
	rb.read.Store(0)
	rb.written.Store(0)
}

// Count returns the number of buffered samples.
func (rb *RingBuffer[T]) Count() int {
	return int(rb.written.Load() - rb.read.Load())
}

// Free returns the number of samples a Bounded write could still accept.
func (rb *RingBuffer[T]) Free() int {
	return rb.capacity - rb.Count()
}

// Capacity returns the total capacity in samples.
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// Policy returns the overflow policy chosen at construction.
func (rb *RingBuffer[T]) Policy() OverflowPolicy {
	return rb.policy
}

// WritePosition returns the write cursor modulo capacity.
func (rb *RingBuffer[T]) WritePosition() int {
	return int(rb.written.Load() % uint64(rb.capacity))
}

// ReadPosition returns the read cursor modulo capacity.
func (rb *RingBuffer[T]) ReadPosition() int {
	return int(rb.read.Load() % uint64(rb.capacity))
}
