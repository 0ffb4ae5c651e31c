// Package ringbuf keeps a sliding window of the most recent mono PCM samples.
package ringbuf

import (
	"encoding/binary"
	"sync"
)

// Buffer is a fixed-capacity circular store of int16 samples. Writers
// overwrite the oldest samples once full; readers only ever copy.
type Buffer struct {
	mu      sync.Mutex
	samples []int16
	head    int // next write position
	n       int // valid samples, <= len(samples)
	written uint64
}

func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{samples: make([]int16, capacity)}
}

// Write appends samples, silently dropping the oldest ones beyond capacity.
func (b *Buffer) Write(samples []int16) {
	if len(samples) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c := len(b.samples)
	b.written += uint64(len(samples))
	if len(samples) >= c {
		copy(b.samples, samples[len(samples)-c:])
		b.head = 0
		b.n = c
		return
	}

	k := copy(b.samples[b.head:], samples)
	if k < len(samples) {
		copy(b.samples, samples[k:])
	}
	b.head = (b.head + len(samples)) % c
	b.n = min(b.n+len(samples), c)
}

// WritePCM decodes little-endian 16-bit PCM and writes it. The signature
// matches audio.DataCallback so a capture device can feed the buffer directly.
func (b *Buffer) WritePCM(data []byte, _ uint32) {
	if len(data) < 2 {
		return
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	b.Write(samples)
}

// Snapshot returns a chronological copy of the buffered samples.
func (b *Buffer) Snapshot() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]int16, b.n)
	start := (b.head - b.n + len(b.samples)) % len(b.samples)
	k := copy(out, b.samples[start:])
	if k < b.n {
		copy(out[k:], b.samples[:b.head])
	}
	return out
}

// IsFull reports whether a full window has been written since start.
func (b *Buffer) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n == len(b.samples)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

func (b *Buffer) Cap() int { return len(b.samples) }

// Written is the total number of samples ever written.
func (b *Buffer) Written() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.written
}
