// Package estimator implements the multiplicative-weights update rule
// described in spec.md §4.3.
package estimator

import (
	"math"

	"metamac/internal/observation"
	"metamac/internal/protocol"
)

// Update feeds one observation into the suite's weight vector. Records
// with PacketQueued=false leave the weights untouched (no packet means no
// meaningful decision to score); they are still stored as LastObservation,
// so the ALOHA emulator treats the next queued packet as fresh.
func Update(s *protocol.Suite, rec observation.Record) {
	if !rec.PacketQueued {
		s.LastObservation = &rec
		return
	}

	active := s.Protocols[s.ActiveProtocol]

	if active.Kind == protocol.KindTDMA && rec.Transmitted {
		realign(s, active, rec.SlotNum)
	}

	z := groundTruth(active, rec)

	adjustedSlot := rec.SlotNum + s.SlotOffset
	for i, p := range s.Protocols {
		d := p.Emulator.Decide(adjustedSlot, s.LastObservation)
		s.W[i] *= math.Exp(-s.Eta * math.Abs(d-z))
	}
	s.Normalize()

	s.LastObservation = &rec
}

// realign recomputes slot_offset so future TDMA emulator calls line up
// with (frame_offset, slot_assignment, frame_length), per spec.md §4.3
// step 1.
func realign(s *protocol.Suite, active *protocol.Protocol, slotNum uint64) {
	fl := int64(active.FrameLength)
	raw := int64(slotNum) - int64(active.FrameOffset) - int64(active.SlotAssignment)
	neg := ((raw % fl) + fl) % fl
	s.SlotOffset = uint64(((fl - neg) % fl))
}

// groundTruth computes z per spec.md §4.3 step 2, following the spec's
// adopted resolution of the source's duplicated ALOHA assignment (§9
// Open Question 1): z = idle ? p : 1-p.
func groundTruth(active *protocol.Protocol, rec observation.Record) float64 {
	if active.Kind == protocol.KindTDMA {
		if !rec.ChannelBusy {
			return 1
		}
		return 0
	}
	p, _ := active.Emulator.Persistence()
	if !rec.ChannelBusy {
		return p
	}
	return 1 - p
}
