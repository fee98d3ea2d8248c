// Package serial drives a 16550 compatible UART so that kernel diagnostics
// can be captured by the host when running under an emulator.
package serial

import (
	"kernos/kernel"
	"kernos/kernel/cpu"
)

// COM1 is the I/O port base of the first serial port.
const COM1 = uint16(0x3f8)

// Register offsets relative to the port base.
const (
	regData        = 0
	regIntEnable   = 1
	regFIFOControl = 2
	regLineControl = 3
	regModemCtrl   = 4
	regLineStatus  = 5
)

const (
	lineControlDLAB = 0x80
	lineControl8N1  = 0x03

	// A divisor of 3 selects 38400 baud.
	baudDivisorLow  = 0x03
	baudDivisorHigh = 0x00

	// Enable and clear the FIFOs with a 14-byte threshold.
	fifoEnableClear14 = 0xc7

	// DTR, RTS and OUT2.
	modemIRQEnabled = 0x0b

	// RTS, OUT1, OUT2 and loopback.
	modemLoopback = 0x1e

	// DTR, RTS, OUT1 and OUT2.
	modemNormal = 0x0f

	lineStatusTxEmpty = 0x20

	loopbackProbe = 0xae
)

var (
	// ErrLoopbackFailed is returned by Init when the byte sent in loopback
	// mode is not read back.
	ErrLoopbackFailed = &kernel.Error{Module: "serial", Kind: kernel.KindBootstrapUnsatisfiable, Message: "loopback test failed; port is faulty or missing"}
)

// Port is an io.Writer that transmits bytes over a serial port.
type Port struct {
	hw   cpu.Hardware
	base uint16
}

// Init programs the port at base for 38400 baud 8N1 transmission and runs a
// loopback self test before switching it to normal operation.
func (p *Port) Init(hw cpu.Hardware, base uint16) *kernel.Error {
	p.hw = hw
	p.base = base

	p.out(regIntEnable, 0x00)
	p.out(regLineControl, lineControlDLAB)
	p.out(regData, baudDivisorLow)
	p.out(regIntEnable, baudDivisorHigh)
	p.out(regLineControl, lineControl8N1)
	p.out(regFIFOControl, fifoEnableClear14)
	p.out(regModemCtrl, modemIRQEnabled)

	p.out(regModemCtrl, modemLoopback)
	p.out(regData, loopbackProbe)
	if p.in(regData) != loopbackProbe {
		return ErrLoopbackFailed
	}

	p.out(regModemCtrl, modemNormal)
	return nil
}

// Write implements io.Writer. Each '\n' is sent as "\r\n". Write blocks
// until the transmitter has accepted every byte.
func (p *Port) Write(data []byte) (int, error) {
	for _, b := range data {
		if b == '\n' {
			p.transmit('\r')
		}
		p.transmit(b)
	}

	return len(data), nil
}

func (p *Port) transmit(b byte) {
	for p.in(regLineStatus)&lineStatusTxEmpty == 0 {
	}
	p.out(regData, b)
}

func (p *Port) out(reg uint16, val uint8) {
	p.hw.WritePort8(p.base+reg, val)
}

func (p *Port) in(reg uint16) uint8 {
	return p.hw.ReadPort8(p.base + reg)
}
