package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeProtocols() []*Protocol {
	return []*Protocol{
		{ID: 0, Name: "a", Emulator: ALOHA{P: 0.5}},
		{ID: 1, Name: "b", Emulator: ALOHA{P: 0.5}},
		{ID: 2, Name: "c", Emulator: ALOHA{P: 0.5}},
	}
}

func TestNewSuiteUniformWeights(t *testing.T) {
	s, err := New(threeProtocols(), 0.25, false)
	require.NoError(t, err)
	for _, w := range s.W {
		assert.InDelta(t, 1.0/3.0, w, 1e-12)
	}
	assert.Equal(t, [2]int{-1, -1}, s.Slots)
	assert.Equal(t, -1, s.ActiveSlot)
}

func TestNewSuiteRejectsBadInput(t *testing.T) {
	_, err := New(nil, 0.25, false)
	assert.Error(t, err)
	_, err = New(threeProtocols(), 0, false)
	assert.Error(t, err)
}

func TestNormalizeFloorsAndSums(t *testing.T) {
	s, err := New(threeProtocols(), 0.25, false)
	require.NoError(t, err)
	s.W = []float64{0.0001, 0.0002, 100}
	s.Normalize()

	sum := 0.0
	for _, w := range s.W {
		assert.GreaterOrEqual(t, w, WeightFloor-1e-12)
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	s, err := New(threeProtocols(), 0.25, false)
	require.NoError(t, err)
	s.W = []float64{0.7, 0.2, 0.1}
	s.Normalize()
	first := append([]float64(nil), s.W...)
	s.Normalize()
	for i := range first {
		assert.True(t, math.Abs(first[i]-s.W[i]) < 1e-12)
	}
}

func TestArgmaxTiesBrokenByLowestIndex(t *testing.T) {
	s, err := New(threeProtocols(), 0.25, false)
	require.NoError(t, err)
	s.W = []float64{0.5, 0.5, 0.0}
	assert.Equal(t, 0, s.ArgmaxWeight())
}

func TestLastAlohaIndex(t *testing.T) {
	protocols := []*Protocol{
		{ID: 0, Name: "tdma", Emulator: TDMA{FrameLength: 4}},
		{ID: 1, Name: "aloha-a", Emulator: ALOHA{P: 0.5}},
		{ID: 2, Name: "aloha-b", Emulator: ALOHA{P: 0.25}},
	}
	s, err := New(protocols, 0.25, false)
	require.NoError(t, err)
	idx, ok := s.LastAlohaIndex()
	require.True(t, ok)
	assert.Equal(t, 2, idx)
}
