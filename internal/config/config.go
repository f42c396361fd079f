// Package config parses the hierarchical configuration document
// described in spec.md §6: a root "metamac" node carrying the learning
// rate and an optional initial protocol id, plus a sequence of
// "protocol" children each naming an FSM, optional FSM parameters, and
// an emulator spec (aloha or tdma).
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"metamac/internal/protocol"
)

// Document is the raw shape of the YAML file before it's turned into a
// protocol.Suite.
type Document struct {
	Metamac struct {
		Eta               float64 `yaml:"eta"`
		InitialProtocolID *int    `yaml:"initial-protocol"`
		Protocols         []protocolDoc `yaml:"protocol"`
	} `yaml:"metamac"`
}

type protocolDoc struct {
	ID      int         `yaml:"id"`
	Name    string      `yaml:"name"`
	FSMPath string      `yaml:"fsm_path"`
	Params  []paramDoc  `yaml:"params"`
	Aloha   *alohaDoc   `yaml:"aloha"`
	TDMA    *tdmaDoc    `yaml:"tdma"`
}

type paramDoc struct {
	Num   int    `yaml:"num"`
	Value uint16 `yaml:"value"`
}

type alohaDoc struct {
	Persistence float64 `yaml:"persistence"`
}

type tdmaDoc struct {
	FrameOffset    uint64 `yaml:"frame_offset"`
	FrameLength    uint64 `yaml:"frame_length"`
	SlotAssignment uint64 `yaml:"slot_assignment"`
}

// Load reads and validates a configuration document from path, returning
// the learning rate, optional initial protocol id, and a fully validated
// list of protocol definitions.
func Load(path string) (eta float64, initialProtocolID *int, protocols []*protocol.Protocol, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return 0, nil, nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if doc.Metamac.Eta <= 0 {
		return 0, nil, nil, fmt.Errorf("config: metamac.eta must be > 0")
	}
	if len(doc.Metamac.Protocols) == 0 {
		return 0, nil, nil, fmt.Errorf("config: metamac.protocol must list at least one protocol")
	}

	protocols = make([]*protocol.Protocol, 0, len(doc.Metamac.Protocols))
	for _, pd := range doc.Metamac.Protocols {
		p, err := buildProtocol(pd)
		if err != nil {
			return 0, nil, nil, err
		}
		if err := p.Validate(); err != nil {
			return 0, nil, nil, fmt.Errorf("config: %w", err)
		}
		protocols = append(protocols, p)
	}

	return doc.Metamac.Eta, doc.Metamac.InitialProtocolID, protocols, nil
}

func buildProtocol(pd protocolDoc) (*protocol.Protocol, error) {
	p := &protocol.Protocol{
		ID:      pd.ID,
		Name:    pd.Name,
		FSMPath: pd.FSMPath,
	}
	for _, prm := range pd.Params {
		p.Params = append(p.Params, protocol.Param{Num: prm.Num, Value: prm.Value})
	}

	switch {
	case pd.Aloha != nil && pd.TDMA != nil:
		return nil, fmt.Errorf("config: protocol %q specifies both aloha and tdma", pd.Name)
	case pd.Aloha != nil:
		p.Kind = protocol.KindALOHA
		p.Emulator = protocol.ALOHA{P: pd.Aloha.Persistence}
	case pd.TDMA != nil:
		p.Kind = protocol.KindTDMA
		p.Emulator = protocol.TDMA{
			FrameOffset:    pd.TDMA.FrameOffset,
			FrameLength:    pd.TDMA.FrameLength,
			SlotAssignment: pd.TDMA.SlotAssignment,
		}
		p.FrameOffset = pd.TDMA.FrameOffset
		p.FrameLength = pd.TDMA.FrameLength
		p.SlotAssignment = pd.TDMA.SlotAssignment
	default:
		return nil, fmt.Errorf("config: protocol %q specifies neither aloha nor tdma", pd.Name)
	}
	return p, nil
}
