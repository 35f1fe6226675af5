// Package audio provides peak metering and the capture backends that feed it.
package audio

import (
	"math"
	"sync/atomic"
)

// maxCASAttempts bounds the retry loop in Record. A capture callback
// must never spin, so a lost race against a larger concurrent value
// simply gives up.
const maxCASAttempts = 64

// PeakAccumulator holds the largest absolute sample magnitude observed
// since the last Drain. It is written from the audio callback and drained
// by the evaluation loop without locks or allocation.
// The zero value is ready to use.
type PeakAccumulator struct {
	bits atomic.Uint32
}

// Record raises the stored maximum to m when m is larger.
// NaN and values not above the current maximum are ignored.
func (p *PeakAccumulator) Record(m float32) {
	if m != m || m <= 0 {
		return
	}
	next := math.Float32bits(m)
	for range maxCASAttempts {
		cur := p.bits.Load()
		if m <= math.Float32frombits(cur) {
			return
		}
		if p.bits.CompareAndSwap(cur, next) {
			return
		}
	}
}

// RecordSamples records the peak absolute magnitude of buf.
func (p *PeakAccumulator) RecordSamples(buf []float32) {
	var peak float32
	for _, s := range buf {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	p.Record(peak)
}

// Drain returns the stored maximum and resets it to zero in one step.
func (p *PeakAccumulator) Drain() float32 {
	return math.Float32frombits(p.bits.Swap(0))
}

// Peek returns the stored maximum without resetting it.
func (p *PeakAccumulator) Peek() float32 {
	return math.Float32frombits(p.bits.Load())
}
