package sim

import (
	"log"
	"math"
)

// Freq is a clock frequency in Hz.
type Freq float64

// Frequency units.
const (
	Hz  Freq = 1
	KHz Freq = 1e3
	MHz Freq = 1e6
	GHz Freq = 1e9
)

// Cycles within this fraction of a cycle from an edge count as on the edge.
const edgeTolerance = 1e-3

// Period is the time between two ticks.
func (f Freq) Period() VTimeInSec {
	if f <= 0 {
		log.Panicf("invalid frequency %f", f)
	}

	return VTimeInSec(1 / float64(f))
}

// Cycle returns the number of whole cycles since time 0.
func (f Freq) Cycle(t VTimeInSec) uint64 {
	return uint64(f.cycles(t))
}

// ThisTick returns t if t is a clock edge, or the first edge after t.
func (f Freq) ThisTick(t VTimeInSec) VTimeInSec {
	return f.edge(math.Ceil(f.cycles(t)))
}

// NextTick returns the first edge strictly after t.
func (f Freq) NextTick(t VTimeInSec) VTimeInSec {
	return f.edge(math.Floor(f.cycles(t)) + 1)
}

func (f Freq) cycles(t VTimeInSec) float64 {
	if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
		log.Panicf("invalid time %f", t)
	}

	c := float64(t) * float64(f)
	if r := math.Round(c); math.Abs(c-r) < edgeTolerance {
		return r
	}

	return c
}

func (f Freq) edge(cycle float64) VTimeInSec {
	return VTimeInSec(cycle / float64(f))
}
