package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowMemoryThreshold(t *testing.T) {
	s := Snapshot{MemTotal: 1000, MemUsedBytes: 950} // 5% free
	assert.True(t, s.LowMemory(0.10))
	assert.False(t, s.LowMemory(0.01))
}

func TestLowMemoryZeroTotalNeverTriggers(t *testing.T) {
	s := Snapshot{}
	assert.False(t, s.LowMemory(0.5))
}

func TestLowMemoryAllFree(t *testing.T) {
	s := Snapshot{MemTotal: 1000, MemUsedBytes: 0}
	assert.False(t, s.LowMemory(0.5))
}
