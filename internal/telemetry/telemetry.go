// Package telemetry implements the two produced interfaces in spec.md
// §6: a once-per-second UDP JSON datagram and a CSV log with one row per
// observation.
package telemetry

import (
	"encoding/json"
	"fmt"
	"net"

	"metamac/internal/protocol"
)

// Emitter sends the per-second JSON telemetry datagram spec.md §6
// describes: {"active": "<idx>", "0": ["<w>","<name>"], ...}.
type Emitter struct {
	conn *net.UDPConn
}

// Dial opens a UDP socket to addr:4321 for telemetry (spec.md §6).
func Dial(addr string) (*Emitter, error) {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:4321", addr))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("telemetry: dial %s: %w", addr, err)
	}
	return &Emitter{conn: conn}, nil
}

// Emit sends one telemetry datagram describing the current suite state.
func (e *Emitter) Emit(s *protocol.Suite) error {
	obj := make(map[string]any, len(s.Protocols)+1)
	obj["active"] = fmt.Sprintf("%d", s.ActiveProtocol)
	for i, p := range s.Protocols {
		obj[fmt.Sprintf("%d", i)] = [2]string{
			fmt.Sprintf("%g", s.W[i]),
			p.Name,
		}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("telemetry: marshal: %w", err)
	}
	_, err = e.conn.Write(data)
	return err
}

// Close releases the telemetry socket.
func (e *Emitter) Close() error {
	return e.conn.Close()
}
