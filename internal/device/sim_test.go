package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimAdvanceAdvancesTSFAndSlotIndex(t *testing.T) {
	s := NewSim(1000)
	s.Advance(SlotEvent{})
	tsf, err := s.ReadTSF()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), tsf)

	reg, err := s.ReadReg16(BankRegs, RegCountSlot)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), reg)
}

func TestSimRollingWindowTracksRecentSlots(t *testing.T) {
	s := NewSim(1000)
	s.Advance(SlotEvent{Transmitted: true, TransmitSuccess: true})
	s.Advance(SlotEvent{})

	mask, err := s.ReadReg16(BankShared, RegMyTransmission)
	require.NoError(t, err)
	// The transmission in slot 0 sits at bit 0; slot 1 sent nothing, so
	// bit 1 stays clear.
	assert.Equal(t, uint16(0b01), mask)
}

func TestSimLoadBytecodeAndSetActiveSlot(t *testing.T) {
	s := NewSim(1000)
	require.NoError(t, s.LoadBytecode(0, "a.fsm"))
	require.NoError(t, s.SetFSMParam(0, 10, 7))
	require.NoError(t, s.SetActiveSlot(0))

	slot0, slot1, active := s.LoadedBytecode()
	assert.Equal(t, "a.fsm", slot0)
	assert.Equal(t, "", slot1)
	assert.Equal(t, 0, active)
}

func TestSimAdvanceTSFByShiftsClockIndependentlyOfSlots(t *testing.T) {
	s := NewSim(1000)
	s.AdvanceTSFBy(5000)
	tsf, err := s.ReadTSF()
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), tsf)

	reg, err := s.ReadReg16(BankRegs, RegCountSlot)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), reg, "TSF jump alone must not advance the slot counter")
}

func TestSimOperationsFailAfterClose(t *testing.T) {
	s := NewSim(1000)
	require.NoError(t, s.Close())

	_, err := s.ReadTSF()
	assert.ErrorIs(t, err, ErrDeviceClosed)
	_, err = s.ReadReg16(BankRegs, RegCountSlot)
	assert.ErrorIs(t, err, ErrDeviceClosed)
	assert.ErrorIs(t, s.LoadBytecode(0, "x"), ErrDeviceClosed)
}

func TestSimUnknownRegisterErrors(t *testing.T) {
	s := NewSim(1000)
	_, err := s.ReadReg16(BankShared, 0x9999)
	assert.Error(t, err)
}
