package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"

	"metamac/internal/observation"
	"metamac/internal/protocol"
)

// CSVLogger writes one row per observation, schema per spec.md §6:
// slot_num,offset,read_num,host_time,tsf_time,slot_index,slots_passed,
// filler,packet_queued,transmitted,transmit_success,transmit_other,
// bad_reception,busy_slot,channel_busy,pcoll,protocol,<name columns...>
type CSVLogger struct {
	f *os.File
	w *csv.Writer
}

// NewCSVLogger creates path, writes the header (naming every protocol in
// s), and returns a logger ready for Write calls.
func NewCSVLogger(path string, s *protocol.Suite) (*CSVLogger, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create log file: %w", err)
	}
	w := csv.NewWriter(f)
	header := []string{
		"slot_num", "offset", "read_num", "host_time", "tsf_time",
		"slot_index", "slots_passed", "filler", "packet_queued",
		"transmitted", "transmit_success", "transmit_other",
		"bad_reception", "busy_slot", "channel_busy", "pcoll", "protocol",
	}
	for _, p := range s.Protocols {
		header = append(header, p.Name)
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("telemetry: write csv header: %w", err)
	}
	return &CSVLogger{f: f, w: w}, nil
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Write appends one row for rec, using pcoll as the current collision
// ratio and s for the active protocol name and the per-protocol weight
// columns.
func (l *CSVLogger) Write(rec observation.Record, pcoll float64, s *protocol.Suite) error {
	row := []string{
		fmt.Sprintf("%d", rec.SlotNum),
		fmt.Sprintf("%d", rec.Offset),
		fmt.Sprintf("%d", rec.ReadNum),
		fmt.Sprintf("%d", rec.HostTimeUs),
		fmt.Sprintf("%d", rec.TSFTimeUs),
		fmt.Sprintf("%d", rec.SlotIndex),
		fmt.Sprintf("%d", rec.SlotsPassed),
		boolStr(rec.Filler),
		boolStr(rec.PacketQueued),
		boolStr(rec.Transmitted),
		boolStr(rec.TransmitSuccess),
		boolStr(rec.TransmitOther),
		boolStr(rec.BadReception),
		boolStr(rec.BusySlot),
		boolStr(rec.ChannelBusy),
		fmt.Sprintf("%g", pcoll),
		s.Protocols[s.ActiveProtocol].Name,
	}
	for _, w := range s.W {
		row = append(row, fmt.Sprintf("%g", w))
	}
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("telemetry: write csv row: %w", err)
	}
	return nil
}

// Flush flushes buffered rows to disk, returning any write error.
func (l *CSVLogger) Flush() error {
	l.w.Flush()
	return l.w.Error()
}

// Close flushes and closes the underlying file.
func (l *CSVLogger) Close() error {
	if err := l.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
