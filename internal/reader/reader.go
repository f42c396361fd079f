// Package reader implements the soft-realtime producer loop described in
// spec.md §4.2: it polls the device register file at sub-slot
// granularity, reconstructs a gap-free ordered stream of per-slot
// observations using the TSF counter to disambiguate the mod-8 slot
// index, and pushes batches into the slot queue.
package reader

import (
	"context"
	"fmt"
	"log"
	"time"

	"metamac/internal/device"
	"metamac/internal/observation"
	"metamac/internal/queueing"
)

// Config parameterises one reader loop.
type Config struct {
	ReadIntervalUs int64
	SlotTimeUs     int64
	UseBusy        bool
}

// Reader polls dev on each iteration and pushes reconstructed
// observations into q. The sole reader of device registers in the
// process (spec.md §5): nothing else may call dev.ReadReg16/ReadTSF
// concurrently with Run.
type Reader struct {
	dev device.Handle
	q   *queueing.Queue
	cfg Config

	started     bool
	lastTSF     uint64
	lastHost    time.Time
	nextSlotNum uint64
}

// New creates a Reader.
func New(dev device.Handle, q *queueing.Queue, cfg Config) *Reader {
	return &Reader{dev: dev, q: q, cfg: cfg}
}

// StopFlag abstracts the shared atomic stop flag so the reader doesn't
// need to import the supervisor package (which imports reader).
type StopFlag interface {
	Stopped() bool
	SetFatal(reason string)
}

// Run executes the reader loop until ctx is cancelled or stop reports a
// fatal condition. It always pushes its final batch and signals q before
// returning, per spec.md §5's cancellation rules.
func (r *Reader) Run(ctx context.Context, stop StopFlag) {
	for {
		if ctx.Err() != nil || stop.Stopped() {
			r.q.Signal()
			return
		}

		loopStart := time.Now()
		batch, err := r.poll(loopStart)
		if err != nil {
			log.Printf("reader: fatal: %v", err)
			stop.SetFatal(err.Error())
			r.q.Signal()
			return
		}
		if len(batch) > 0 {
			r.q.PushMany(batch)
		}

		deadline := loopStart.Add(time.Duration(r.cfg.ReadIntervalUs) * time.Microsecond)
		if d := time.Until(deadline); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		}
	}
}

// poll performs one iteration of spec.md §4.2 steps 1-6 and returns the
// batch of observations to push.
func (r *Reader) poll(loopStart time.Time) ([]observation.Record, error) {
	tsf, err := r.dev.ReadTSF()
	if err != nil {
		return nil, fmt.Errorf("read TSF: %w", err)
	}
	slotReg, err := r.dev.ReadReg16(device.BankRegs, device.RegCountSlot)
	if err != nil {
		return nil, fmt.Errorf("read slot counter: %w", err)
	}
	slotIndex := uint8(slotReg & 0x7)

	pq, err := r.dev.ReadReg16(device.BankShared, device.RegPacketToTransmit)
	if err != nil {
		return nil, fmt.Errorf("read packet_queued mask: %w", err)
	}
	tx, err := r.dev.ReadReg16(device.BankShared, device.RegMyTransmission)
	if err != nil {
		return nil, fmt.Errorf("read transmitted mask: %w", err)
	}
	ok, err := r.dev.ReadReg16(device.BankShared, device.RegSuccessTx)
	if err != nil {
		return nil, fmt.Errorf("read success mask: %w", err)
	}
	other, err := r.dev.ReadReg16(device.BankShared, device.RegOtherTx)
	if err != nil {
		return nil, fmt.Errorf("read other-tx mask: %w", err)
	}
	badRx, err := r.dev.ReadReg16(device.BankShared, device.RegBadReception)
	if err != nil {
		return nil, fmt.Errorf("read bad-reception mask: %w", err)
	}
	busy, err := r.dev.ReadReg16(device.BankShared, device.RegBusySlot)
	if err != nil {
		return nil, fmt.Errorf("read busy-slot mask: %w", err)
	}

	endSlotReg, err := r.dev.ReadReg16(device.BankRegs, device.RegCountSlot)
	if err != nil {
		return nil, fmt.Errorf("read end slot counter: %w", err)
	}
	endSlotIndex := uint8(endSlotReg & 0x7)

	if !r.started {
		r.started = true
		r.lastTSF = tsf
		r.lastHost = loopStart
		r.nextSlotNum = (uint64(slotIndex) + 1) % 8
		return nil, nil
	}

	slotsPassed, err := r.resolveSlotsPassed(slotIndex, tsf, loopStart)
	if err != nil {
		return nil, err
	}
	r.lastTSF = tsf
	r.lastHost = loopStart
	if slotsPassed == 0 {
		return nil, nil
	}

	maxValid := maxValidOffset(slotIndex, endSlotIndex)

	batch := make([]observation.Record, 0, slotsPassed)
	startNum := r.nextSlotNum
	for offset := int64(slotsPassed); offset >= 1; offset-- {
		slotNum := startNum + uint64(slotsPassed) - uint64(offset)
		if offset > maxValid {
			// Filler: slot_num still advances, but nothing trustworthy was
			// read for it (spec.md §4.2 step 5, §9 Open Question 3).
			batch = append(batch, observation.Record{
				SlotNum:     slotNum,
				Offset:      int(offset),
				HostTimeUs:  loopStart.UnixMicro(),
				TSFTimeUs:   tsf,
				SlotIndex:   slotIndex,
				SlotsPassed: uint8(slotsPassed),
				Filler:      true,
			})
			continue
		}
		si := uint8(((int64(slotIndex) - offset) % 8 + 8) % 8)
		flags := observation.FlagsFromMasks(si, pq, tx, ok, other, badRx, busy)
		rec := observation.Record{
			SlotNum:         slotNum,
			Offset:          int(offset),
			HostTimeUs:      loopStart.UnixMicro(),
			TSFTimeUs:       tsf,
			SlotIndex:       slotIndex,
			SlotsPassed:     uint8(slotsPassed),
			PacketQueued:    flags.PacketQueued,
			Transmitted:     flags.Transmitted,
			TransmitSuccess: flags.TransmitSuccess,
			TransmitOther:   flags.TransmitOther,
			BadReception:    flags.BadReception,
			BusySlot:        flags.BusySlot,
		}
		rec.ChannelBusy = observation.ChannelBusy(observation.Flags{
			Transmitted:     rec.Transmitted,
			TransmitSuccess: rec.TransmitSuccess,
			TransmitOther:   rec.TransmitOther,
			BadReception:    rec.BadReception,
			BusySlot:        rec.BusySlot,
		}, r.cfg.UseBusy)
		batch = append(batch, rec)
	}

	r.nextSlotNum = startNum + uint64(slotsPassed)
	return batch, nil
}

// resolveSlotsPassed implements spec.md §4.2 step 4: the raw mod-8
// difference is only a lower bound, so it picks the k minimising
// |Δtsf - (raw+8k)*slot_time|, substituting the host-clock delta for
// Δtsf when the TSF delta looks anomalous.
func (r *Reader) resolveSlotsPassed(slotIndex uint8, tsf uint64, loopStart time.Time) (uint64, error) {
	raw := (int64(slotIndex) - int64((r.nextSlotNum+7)%8) + 8) % 8

	deltaTSF := int64(tsf) - int64(r.lastTSF)
	if deltaTSF < 0 || deltaTSF > 200000 {
		log.Printf("reader: TSF anomaly (delta=%dus), falling back to host clock", deltaTSF)
		deltaTSF = loopStart.Sub(r.lastHost).Microseconds()
		if deltaTSF < 0 {
			return 0, fmt.Errorf("TSF anomaly and host clock both non-monotonic")
		}
	}

	best := uint64(raw)
	bestErr := absInt64(deltaTSF - (raw)*r.cfg.SlotTimeUs)
	// Candidates grow by 8 slots each; once the previous candidate already
	// spans deltaTSF, later ones only move further away, so the search
	// stops there.
	for k := int64(1); r.cfg.SlotTimeUs > 0 && (raw+8*(k-1))*r.cfg.SlotTimeUs < deltaTSF; k++ {
		candidate := raw + 8*k
		e := absInt64(deltaTSF - candidate*r.cfg.SlotTimeUs)
		if e < bestErr {
			bestErr = e
			best = uint64(candidate)
		}
	}
	return best, nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// maxValidOffset implements spec.md §4.2 step 5's bullet formula.
func maxValidOffset(slotIndex, endSlotIndex uint8) int64 {
	if slotIndex <= endSlotIndex {
		return int64(slotIndex) - int64(endSlotIndex) + 7
	}
	return int64(slotIndex) - int64(endSlotIndex) - 1
}
