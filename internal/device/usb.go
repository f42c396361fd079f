//go:build !mips && !mipsle
// +build !mips,!mipsle

// USB-attached device backend. Bulk-transfers register reads, TSF reads,
// and bytecode-slot writes to a programmable wireless MAC device over a
// vendor-defined USB protocol, framed with a CRC-16 trailer the same way
// the reference hardware's control packets are framed.
package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"github.com/google/gousb"
)

const (
	usbVendorID  = 0x4D4D // "MM"
	usbProductID = 0x4143 // "AC"

	endpointOut = 0x01
	endpointIn  = 0x81

	maxPacketSize = 512

	cmdReadReg      = 0x10
	cmdReadTSF      = 0x11
	cmdLoadBytecode = 0x20
	cmdSetFSMParam  = 0x21
	cmdSetActive    = 0x22
	cmdWaitMode     = 0x23

	respOK = 0xA0
)

// crc16 tables, Modbus-style, matching the reference device's framing.
var crcHiTable = [256]uint8{
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x00, 0xC1, 0x81, 0x40,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x00, 0xC1, 0x81, 0x40,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x00, 0xC1, 0x81, 0x40,
	0x01, 0xC0, 0x80, 0x41, 0x01, 0xC0, 0x80, 0x41, 0x00, 0xC1, 0x81, 0x40,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x00, 0xC1, 0x81, 0x40,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41,
	0x01, 0xC0, 0x80, 0x41, 0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x00, 0xC1, 0x81, 0x40,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40, 0x01, 0xC0, 0x80, 0x41, 0x01, 0xC0, 0x80, 0x41,
	0x00, 0xC1, 0x81, 0x40,
}

var crcLoTable = [256]uint8{
	0x00, 0xC0, 0xC1, 0x01, 0xC3, 0x03, 0x02, 0xC2, 0xC6, 0x06, 0x07, 0xC7,
	0x05, 0xC5, 0xC4, 0x04, 0xCC, 0x0C, 0x0D, 0xCD, 0x0F, 0xCF, 0xCE, 0x0E,
	0x0A, 0xCA, 0xCB, 0x0B, 0xC9, 0x09, 0x08, 0xC8, 0xD8, 0x18, 0x19, 0xD9,
	0x1B, 0xDB, 0xDA, 0x1A, 0x1E, 0xDE, 0xDF, 0x1F, 0xDD, 0x1D, 0x1C, 0xDC,
	0x14, 0xD4, 0xD5, 0x15, 0xD7, 0x17, 0x16, 0xD6, 0xD2, 0x12, 0x13, 0xD3,
	0x11, 0xD1, 0xD0, 0x10, 0xF0, 0x30, 0x31, 0xF1, 0x33, 0xF3, 0xF2, 0x32,
	0x36, 0xF6, 0xF7, 0x37, 0xF5, 0x35, 0x34, 0xF4, 0x3C, 0xFC, 0xFD, 0x3D,
	0xFF, 0x3F, 0x3E, 0xFE, 0xFA, 0x3A, 0x3B, 0xFB, 0x39, 0xF9, 0xF8, 0x38,
	0x28, 0xE8, 0xE9, 0x29, 0xEB, 0x2B, 0x2A, 0xEA, 0xEE, 0x2E, 0x2F, 0xEF,
	0x2D, 0xED, 0xEC, 0x2C, 0xE4, 0x24, 0x25, 0xE5, 0x27, 0xE7, 0xE6, 0x26,
	0x22, 0xE2, 0xE3, 0x23, 0xE1, 0x21, 0x20, 0xE0, 0xA0, 0x60, 0x61, 0xA1,
	0x63, 0xA3, 0xA2, 0x62, 0x66, 0xA6, 0xA7, 0x67, 0xA5, 0x65, 0x64, 0xA4,
	0x6C, 0xAC, 0xAD, 0x6D, 0xAF, 0x6F, 0x6E, 0xAE, 0xAA, 0x6A, 0x6B, 0xAB,
	0x69, 0xA9, 0xA8, 0x68, 0x78, 0xB8, 0xB9, 0x79, 0xBB, 0x7B, 0x7A, 0xBA,
	0xBE, 0x7E, 0x7F, 0xBF, 0x7D, 0xBD, 0xBC, 0x7C, 0xB4, 0x74, 0x75, 0xB5,
	0x77, 0xB7, 0xB6, 0x76, 0x72, 0xB2, 0xB3, 0x73, 0xB1, 0x71, 0x70, 0xB0,
	0x50, 0x90, 0x91, 0x51, 0x93, 0x53, 0x52, 0x92, 0x96, 0x56, 0x57, 0x97,
	0x55, 0x95, 0x94, 0x54, 0x9C, 0x5C, 0x5D, 0x9D, 0x5F, 0x9F, 0x9E, 0x5E,
	0x5A, 0x9A, 0x9B, 0x5B, 0x99, 0x59, 0x58, 0x98, 0x88, 0x48, 0x49, 0x89,
	0x4B, 0x8B, 0x8A, 0x4A, 0x4E, 0x8E, 0x8F, 0x4F, 0x8D, 0x4D, 0x4C, 0x8C,
	0x44, 0x84, 0x85, 0x45, 0x87, 0x47, 0x46, 0x86, 0x82, 0x42, 0x43, 0x83,
	0x41, 0x81, 0x80, 0x40,
}

func crc16(data []byte) uint16 {
	hi := uint8(0xFF)
	lo := uint8(0xFF)
	for _, b := range data {
		idx := lo ^ b
		lo = hi ^ crcHiTable[idx]
		hi = crcLoTable[idx]
	}
	return (uint16(hi) << 8) | uint16(lo)
}

// USBHandle talks to a USB-attached MetaMAC device directly via bulk
// transfers, bypassing any kernel driver.
type USBHandle struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint
	closed bool
}

// OpenUSB opens the first device matching the MetaMAC vendor/product ID.
func OpenUSB() (*USBHandle, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(usbVendorID, usbProductID)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("device: open USB device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device: USB device not found (VID:0x%04x PID:0x%04x)", usbVendorID, usbProductID)
	}

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("device: set USB config: %w", err)
	}

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("device: claim USB interface: %w", err)
	}

	epOut, err := intf.OutEndpoint(endpointOut)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("device: open OUT endpoint: %w", err)
	}

	epIn, err := intf.InEndpoint(endpointIn)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("device: open IN endpoint: %w", err)
	}

	log.Printf("device: opened USB handle (VID:0x%04x PID:0x%04x)", usbVendorID, usbProductID)
	return &USBHandle{ctx: ctx, device: dev, config: cfg, intf: intf, epOut: epOut, epIn: epIn}, nil
}

func (h *USBHandle) transact(req []byte, timeout time.Duration) ([]byte, error) {
	if h.closed {
		return nil, ErrDeviceClosed
	}
	if _, err := h.epOut.Write(req); err != nil {
		return nil, fmt.Errorf("device: USB write: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	buf := make([]byte, maxPacketSize)
	n, err := h.epIn.ReadContext(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("device: USB read: %w", err)
	}
	return buf[:n], nil
}

func buildFrame(cmd byte, payload []byte) []byte {
	frame := make([]byte, 2+len(payload)+2)
	frame[0] = cmd
	frame[1] = byte(len(payload))
	copy(frame[2:], payload)
	crc := crc16(frame[:2+len(payload)])
	binary.LittleEndian.PutUint16(frame[2+len(payload):], crc)
	return frame
}

func (h *USBHandle) ReadReg16(bank Bank, offset uint16) (uint16, error) {
	payload := make([]byte, 3)
	payload[0] = byte(bank)
	binary.LittleEndian.PutUint16(payload[1:], offset)
	resp, err := h.transact(buildFrame(cmdReadReg, payload), 100*time.Millisecond)
	if err != nil {
		return 0, err
	}
	if len(resp) < 4 || resp[0] != respOK {
		return 0, fmt.Errorf("device: malformed ReadReg16 response")
	}
	return binary.LittleEndian.Uint16(resp[2:4]), nil
}

func (h *USBHandle) ReadTSF() (uint64, error) {
	resp, err := h.transact(buildFrame(cmdReadTSF, nil), 100*time.Millisecond)
	if err != nil {
		return 0, err
	}
	if len(resp) < 10 || resp[0] != respOK {
		return 0, fmt.Errorf("device: malformed ReadTSF response")
	}
	return binary.LittleEndian.Uint64(resp[2:10]), nil
}

func (h *USBHandle) LoadBytecode(slot int, fsmPath string) error {
	payload := append([]byte{byte(slot)}, []byte(fsmPath)...)
	_, err := h.transact(buildFrame(cmdLoadBytecode, payload), 2*time.Second)
	return err
}

func (h *USBHandle) SetFSMParam(slot int, num int, value uint16) error {
	payload := make([]byte, 4)
	payload[0] = byte(slot)
	payload[1] = byte(num)
	binary.LittleEndian.PutUint16(payload[2:], value)
	_, err := h.transact(buildFrame(cmdSetFSMParam, payload), 200*time.Millisecond)
	return err
}

func (h *USBHandle) SetActiveSlot(slot int) error {
	_, err := h.transact(buildFrame(cmdSetActive, []byte{byte(slot)}), 200*time.Millisecond)
	return err
}

func (h *USBHandle) EnterWaitMode() error {
	_, err := h.transact(buildFrame(cmdWaitMode, []byte{1}), 200*time.Millisecond)
	return err
}

func (h *USBHandle) LeaveWaitMode() error {
	_, err := h.transact(buildFrame(cmdWaitMode, []byte{0}), 200*time.Millisecond)
	return err
}

func (h *USBHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.intf.Close()
	h.config.Close()
	h.device.Close()
	h.ctx.Close()
	return nil
}

// IsUSBAvailable reports whether a MetaMAC USB device is currently
// enumerated, without opening it for exclusive use.
func IsUSBAvailable() bool {
	ctx := gousb.NewContext()
	defer ctx.Close()
	dev, err := ctx.OpenDeviceWithVIDPID(usbVendorID, usbProductID)
	if err != nil || dev == nil {
		return false
	}
	dev.Close()
	return true
}
