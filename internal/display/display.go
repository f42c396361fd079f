// Package display renders the processor's once-per-second updates: a
// plain console line (the default), an optional bubbletea TUI
// (--verbose), and an optional localhost status page served with gin.
package display

import (
	"fmt"
	"time"

	"metamac/internal/health"
	"metamac/internal/protocol"
)

// Snapshot is the data one display tick carries, captured by value so it
// can be handed across goroutine boundaries (to the TUI's channel and to
// the status page's last-known-state field) without aliasing the live
// suite.
type Snapshot struct {
	Active  string
	Names   []string
	Weights []float64
	PColl   float64
	Health  health.Snapshot
	At      time.Time
}

func snapshot(s *protocol.Suite, pcoll float64, h health.Snapshot) Snapshot {
	names := make([]string, len(s.Protocols))
	weights := make([]float64, len(s.W))
	copy(weights, s.W)
	for i, p := range s.Protocols {
		names[i] = p.Name
	}
	return Snapshot{
		Active:  s.Protocols[s.ActiveProtocol].Name,
		Names:   names,
		Weights: weights,
		PColl:   pcoll,
		Health:  h,
		At:      time.Now(),
	}
}

// Console is the plain-text DisplaySink used when --verbose is not set:
// one line per tick, matching the log package's ordinary log line shape.
type Console struct{}

// Update implements processor.DisplaySink.
func (Console) Update(s *protocol.Suite, pcoll float64, h health.Snapshot) {
	snap := snapshot(s, pcoll, h)
	fmt.Printf("active=%s pcoll=%.3f cpu=%.1f%% mem=%d/%dMB weights=%s\n",
		snap.Active, snap.PColl, snap.Health.CPUPercent,
		snap.Health.MemUsedBytes/1e6, snap.Health.MemTotal/1e6,
		formatWeights(snap.Names, snap.Weights))
}

// Sink is the interface processor.DisplaySink requires; declared locally
// so MultiSink can compose other sinks without importing processor.
type Sink interface {
	Update(s *protocol.Suite, pcoll float64, h health.Snapshot)
}

// MultiSink fans one display tick out to several sinks (e.g. the console
// line and the status-page's last-known-state).
type MultiSink []Sink

// Update implements processor.DisplaySink.
func (m MultiSink) Update(s *protocol.Suite, pcoll float64, h health.Snapshot) {
	for _, sink := range m {
		sink.Update(s, pcoll, h)
	}
}

func formatWeights(names []string, weights []float64) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%.3f", n, weights[i])
	}
	return out
}
