// Package observation defines the per-slot record produced by the reader
// and consumed by the processor/estimator.
package observation

// Record is one slot's worth of reconstructed feedback. SlotNum is
// strictly increasing across the entire stream produced by a single
// reader loop; see the reader package for how that invariant is kept.
type Record struct {
	SlotNum     uint64
	Offset      int // distance back from slot_index at read time (reader's reconstruction offset)
	ReadNum     uint64
	HostTimeUs  int64
	TSFTimeUs   uint64
	SlotIndex   uint8 // 0..7
	SlotsPassed uint8 // >=1, slots elapsed between the previous read and the read that produced this record
	Filler      bool  // true => every flag below is zero, nothing happened

	PacketQueued     bool
	Transmitted      bool
	TransmitSuccess  bool
	TransmitOther    bool
	BadReception     bool
	BusySlot         bool
	ChannelBusy      bool
}

// Flags bundles the six raw per-slot feedback bits the device reports,
// before ChannelBusy is derived from them.
type Flags struct {
	PacketQueued    bool
	Transmitted     bool
	TransmitSuccess bool
	TransmitOther   bool
	BadReception    bool
	BusySlot        bool
}

// ChannelBusy derives the channel_busy bit from the other flags, per
// spec.md §4.2 step 3. useBusy controls whether BusySlot additionally
// contributes.
func ChannelBusy(f Flags, useBusy bool) bool {
	busy := (f.Transmitted && !f.TransmitSuccess) ||
		((f.TransmitOther || f.BadReception) && !(f.Transmitted && f.TransmitSuccess))
	if useBusy {
		busy = busy || (f.BusySlot && !(f.Transmitted && f.TransmitSuccess))
	}
	return busy
}

// FlagsFromMasks extracts the feedback bits for slot index si (0..7) from
// the six rolling bitmasks read from the device, each one bit per slot
// index in a window of 8.
func FlagsFromMasks(si uint8, packetQueued, transmitted, success, other, badRx, busy uint16) Flags {
	bit := func(mask uint16) bool {
		return (mask>>si)&1 == 1
	}
	return Flags{
		PacketQueued:    bit(packetQueued),
		Transmitted:     bit(transmitted),
		TransmitSuccess: bit(success),
		TransmitOther:   bit(other),
		BadReception:    bit(badRx),
		BusySlot:        bit(busy),
	}
}
