// Package slotcache implements the two-slot bytecode cache controller
// described in spec.md §4.4: it decides, for a requested target protocol,
// whether loading it is a no-op, a slot flip, a reparameterisation, or a
// full bytecode reload, and drives the device handle accordingly.
package slotcache

import (
	"fmt"
	"time"

	"metamac/internal/device"
	"metamac/internal/protocol"
)

// Controller owns the device-facing half of protocol.Suite's slot state.
// It is driven only by the processor thread (spec.md §5), matching the
// teacher's convention of a single owning goroutine per stateful device
// resource.
type Controller struct {
	dev      device.Handle
	readonly bool
}

// New creates a controller over dev. When readonly is true, Load never
// touches the device: it only updates bookkeeping fields on the suite.
func New(dev device.Handle, readonly bool) *Controller {
	return &Controller{dev: dev, readonly: readonly}
}

// Load reconciles the suite's active protocol with target, choosing the
// cheapest legal transition per the table in spec.md §4.4, and stamps
// ActiveProtocol/LastUpdateTime on s. Calling Load(target) twice performs
// at most one device write: the second call is a no-op (target already
// equals s.Slots[s.ActiveSlot]).
func (c *Controller) Load(s *protocol.Suite, target int) error {
	if c.readonly {
		s.ActiveProtocol = target
		s.LastUpdateTime = time.Now()
		return nil
	}

	tgt := s.Protocols[target]
	active := s.ActiveSlot

	switch {
	case active >= 0 && s.Slots[active] == target:
		// No-op: already the active slot's protocol.

	case active >= 0 && s.Slots[1-active] == target:
		if err := c.dev.SetActiveSlot(1 - active); err != nil {
			return fmt.Errorf("slotcache: flip active slot: %w", err)
		}
		s.ActiveSlot = 1 - active

	case active >= 0 && s.Slots[active] != -1 && protocol.SameFSM(s.Protocols[s.Slots[active]], tgt):
		if err := c.writeParams(active, tgt); err != nil {
			return err
		}
		s.Slots[active] = target

	case active >= 0 && s.Slots[1-active] != -1 && protocol.SameFSM(s.Protocols[s.Slots[1-active]], tgt):
		other := 1 - active
		if err := c.writeParams(other, tgt); err != nil {
			return err
		}
		if err := c.dev.SetActiveSlot(other); err != nil {
			return fmt.Errorf("slotcache: flip active slot after reparameterise: %w", err)
		}
		s.Slots[other] = target
		s.ActiveSlot = other

	default:
		dest := 0
		if active >= 0 {
			dest = 1 - active
		}
		if err := c.loadFresh(dest, tgt); err != nil {
			return err
		}
		if err := c.dev.SetActiveSlot(dest); err != nil {
			return fmt.Errorf("slotcache: flip active slot after fresh load: %w", err)
		}
		s.Slots[dest] = target
		s.ActiveSlot = dest
	}

	s.ActiveProtocol = target
	s.LastUpdateTime = time.Now()
	return nil
}

func (c *Controller) writeParams(slot int, p *protocol.Protocol) error {
	for _, prm := range p.Params {
		if err := c.dev.SetFSMParam(slot, prm.Num, prm.Value); err != nil {
			return fmt.Errorf("slotcache: set fsm param slot %d num %d: %w", slot, prm.Num, err)
		}
	}
	return nil
}

func (c *Controller) loadFresh(slot int, p *protocol.Protocol) error {
	if err := c.dev.EnterWaitMode(); err != nil {
		return fmt.Errorf("slotcache: enter wait mode: %w", err)
	}
	defer c.dev.LeaveWaitMode()

	if err := c.dev.LoadBytecode(slot, p.FSMPath); err != nil {
		return fmt.Errorf("slotcache: load bytecode slot %d: %w", slot, err)
	}
	return c.writeParams(slot, p)
}

// InitialLoad performs the startup placement described in spec.md §4.4:
// if no initial protocol was configured, the argmax of w is loaded into
// slot 0 before the device is enabled. In readonly mode the device is
// never written and Slots stays (-1,-1).
func (c *Controller) InitialLoad(s *protocol.Suite, initialProtocolID *int) error {
	target := s.ArgmaxWeight()
	if initialProtocolID != nil {
		if idx, ok := s.ByID(*initialProtocolID); ok {
			target = idx
		}
	}
	if c.readonly {
		s.ActiveProtocol = target
		s.LastUpdateTime = time.Now()
		return nil
	}
	if err := c.loadFresh(0, s.Protocols[target]); err != nil {
		return err
	}
	if err := c.dev.SetActiveSlot(0); err != nil {
		return fmt.Errorf("slotcache: activate slot 0 at startup: %w", err)
	}
	s.Slots[0] = target
	s.ActiveSlot = 0
	s.ActiveProtocol = target
	s.LastUpdateTime = time.Now()
	return nil
}
