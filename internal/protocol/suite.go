package protocol

import (
	"fmt"
	"time"

	"metamac/internal/observation"
)

// WeightFloor is the minimum weight any candidate protocol can hold
// (spec.md §3).
const WeightFloor = 0.01

// Suite owns every piece of mutable state the estimator, the slot-cache
// controller, and the processor's evaluate step touch. It is exclusively
// owned by the processor thread after configuration load (spec.md §3's
// ownership rule) — no internal locking, by design.
type Suite struct {
	Protocols []*Protocol
	W         []float64
	Eta       float64

	ActiveProtocol int
	Slots          [2]int // protocol index loaded per bytecode slot, -1 = empty
	ActiveSlot     int    // -1, 0, or 1
	SlotOffset     uint64

	LastObservation *observation.Record
	LastUpdateTime  time.Time
	Cycle           bool
}

// New builds a suite with a uniform initial weight vector.
func New(protocols []*Protocol, eta float64, cycle bool) (*Suite, error) {
	if len(protocols) == 0 {
		return nil, fmt.Errorf("protocol: suite requires at least one protocol")
	}
	if eta <= 0 {
		return nil, fmt.Errorf("protocol: learning rate must be > 0, got %v", eta)
	}
	w := make([]float64, len(protocols))
	for i := range w {
		w[i] = 1.0 / float64(len(protocols))
	}
	return &Suite{
		Protocols:  protocols,
		W:          w,
		Eta:        eta,
		Slots:      [2]int{-1, -1},
		ActiveSlot: -1,
		Cycle:      cycle,
	}, nil
}

// Normalize rescales W so it sums to 1 with every entry at or above
// WeightFloor. Idempotent: applying it to an already-normalised vector
// leaves it unchanged within floating-point tolerance.
func (s *Suite) Normalize() {
	sum := 0.0
	for i := range s.W {
		if s.W[i] < WeightFloor {
			s.W[i] = WeightFloor
		}
		sum += s.W[i]
	}
	if sum == 0 {
		return
	}
	for i := range s.W {
		s.W[i] /= sum
	}
	// Dividing by sum can pull a floored entry back under WeightFloor: pin
	// such entries at the floor and rescale the others so the sum stays 1.
	pinned := make([]bool, len(s.W))
	for free, rest, again := 1.0, 1.0, true; again; {
		scale := free / rest
		again, rest = false, free
		for i := range s.W {
			if !pinned[i] {
				if s.W[i] *= scale; s.W[i] < WeightFloor {
					rest -= s.W[i]
					s.W[i], pinned[i], again, free = WeightFloor, true, true, free-WeightFloor
				}
			}
		}
	}
}

// ArgmaxWeight returns the index of the highest-weighted protocol, ties
// broken by lowest index.
func (s *Suite) ArgmaxWeight() int {
	best := 0
	for i := 1; i < len(s.W); i++ {
		if s.W[i] > s.W[best] {
			best = i
		}
	}
	return best
}

// ByID looks up a protocol index by its configured ID.
func (s *Suite) ByID(id int) (int, bool) {
	for i, p := range s.Protocols {
		if p.ID == id {
			return i, true
		}
	}
	return 0, false
}

// LastAlohaIndex returns the index of the last protocol in the suite
// whose emulator is ALOHA-style, used by the UDP command endpoint's
// "ALOHA" shortcut (spec.md §6).
func (s *Suite) LastAlohaIndex() (int, bool) {
	for i := len(s.Protocols) - 1; i >= 0; i-- {
		if _, isAloha := s.Protocols[i].Emulator.Persistence(); isAloha {
			return i, true
		}
	}
	return 0, false
}
