package queueing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metamac/internal/observation"
)

func TestFIFOOrdering(t *testing.T) {
	q := New(DefaultCapacity)
	in := make([]observation.Record, 0, 10)
	for i := uint64(0); i < 10; i++ {
		in = append(in, observation.Record{SlotNum: i})
	}
	q.PushMany(in)

	out := q.PopMany(100)
	require.Len(t, out, 10)
	for i, rec := range out {
		assert.Equal(t, uint64(i), rec.SlotNum)
	}
}

func TestGrowOnBurst(t *testing.T) {
	q := New(4)
	in := make([]observation.Record, 0, 10)
	for i := uint64(0); i < 10; i++ {
		in = append(in, observation.Record{SlotNum: i})
	}
	q.PushMany(in)

	out := q.PopMany(100)
	require.Len(t, out, 10)
	for i, rec := range out {
		assert.Equal(t, uint64(i), rec.SlotNum)
	}
	assert.GreaterOrEqual(t, q.Cap(), 10)
}

func TestPopManyRespectsMax(t *testing.T) {
	q := New(0)
	q.PushMany([]observation.Record{{SlotNum: 0}, {SlotNum: 1}, {SlotNum: 2}})
	first := q.PopMany(2)
	assert.Len(t, first, 2)
	rest := q.PopMany(2)
	assert.Len(t, rest, 1)
}

func TestPushManyCompactsInsteadOfOverrunningTail(t *testing.T) {
	q := New(256)
	first := make([]observation.Record, 250)
	for i := range first {
		first[i] = observation.Record{SlotNum: uint64(i)}
	}
	q.PushMany(first)

	popped := q.PopMany(16)
	require.Len(t, popped, 16)

	second := make([]observation.Record, 10)
	for i := range second {
		second[i] = observation.Record{SlotNum: uint64(250 + i)}
	}
	assert.NotPanics(t, func() { q.PushMany(second) })

	out := q.PopMany(1000)
	require.Len(t, out, 234+10)
	for i, rec := range out {
		assert.Equal(t, uint64(16+i), rec.SlotNum)
	}
}

func TestSignalUnblocksWithNoData(t *testing.T) {
	q := New(0)
	done := make(chan []observation.Record, 1)
	go func() {
		done <- q.PopMany(10)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Signal()

	select {
	case out := <-done:
		assert.Empty(t, out)
	case <-time.After(time.Second):
		t.Fatal("PopMany did not unblock on Signal")
	}
}

func TestSignalDoesNotStarveSubsequentPush(t *testing.T) {
	q := New(0)
	q.Signal() // wake with nothing pending, as the shutdown path would

	done := make(chan []observation.Record, 1)
	go func() {
		done <- q.PopMany(10)
	}()
	q.PushMany([]observation.Record{{SlotNum: 1}})

	select {
	case out := <-done:
		require.Len(t, out, 1)
		assert.Equal(t, uint64(1), out[0].SlotNum)
	case <-time.After(time.Second):
		t.Fatal("PopMany never observed the push")
	}
}
