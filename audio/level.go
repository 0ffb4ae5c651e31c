package audio

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"time"
)

// RMS returns the root mean square of little-endian 16-bit samples,
// normalized to [0, 1].
func RMS(data []byte) float64 {
	n := len(data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Meter keeps the loudest chunk level seen since the last Take. Observe is
// safe to call from the capture callback.
type Meter struct {
	peak atomic.Uint64
}

func (m *Meter) Observe(data []byte, _ uint32) {
	level := RMS(data)
	for {
		old := m.peak.Load()
		if level <= math.Float64frombits(old) {
			return
		}
		if m.peak.CompareAndSwap(old, math.Float64bits(level)) {
			return
		}
	}
}

// Take returns the peak level and resets it.
func (m *Meter) Take() float64 {
	return math.Float64frombits(m.peak.Swap(0))
}

const (
	SignalTick        = 100 * time.Millisecond
	signalLostAfter   = 8 * time.Second
	signalMinRatio    = 0.10
	signalClearRatio  = 0.25
	DefaultSignalGate = 0.005
)

type SignalEvent int

const (
	SignalNone SignalEvent = iota
	SignalLost
	SignalRestored
)

// SignalMonitor decides, one tick at a time, whether the input has gone
// quiet. It warns once when fewer than 10% of the last 8s of ticks carried
// signal and clears once that rises to 25%.
type SignalMonitor struct {
	window []bool
	ticks  int
	lost   bool
}

func NewSignalMonitor() *SignalMonitor {
	return &SignalMonitor{window: make([]bool, int(signalLostAfter/SignalTick))}
}

func (m *SignalMonitor) Tick(hasSignal bool) SignalEvent {
	m.window[m.ticks%len(m.window)] = hasSignal
	m.ticks++
	if m.ticks < len(m.window) {
		return SignalNone
	}

	count := 0
	for _, s := range m.window {
		if s {
			count++
		}
	}
	r := float64(count) / float64(len(m.window))

	switch {
	case !m.lost && r < signalMinRatio:
		m.lost = true
		return SignalLost
	case m.lost && r >= signalClearRatio:
		m.lost = false
		return SignalRestored
	}
	return SignalNone
}

func (m *SignalMonitor) Lost() bool { return m.lost }
