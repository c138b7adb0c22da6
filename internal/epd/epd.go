// Package epd drives the Waveshare 7.3" ACeP (AC073TC1-class) six-colour
// e-paper panel over SPI.
//
// The package does not talk to hardware directly. GPIO lines, the SPI bus
// and time are injected through the Lines, Bus and Clock interfaces; see
// internal/hw for periph.io, go-rpio, gpiocdev and simulated backends.
package epd

import (
	"fmt"
	"time"
)

// Role names one of the digital lines wired to the panel.
type Role int

const (
	RoleCS Role = iota
	RoleDC
	RoleReset
	RoleBusy
	RoleRail
)

func (r Role) String() string {
	switch r {
	case RoleCS:
		return "cs"
	case RoleDC:
		return "dc"
	case RoleReset:
		return "reset"
	case RoleBusy:
		return "busy"
	case RoleRail:
		return "rail_enable"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Level is a digital line level.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// Direction of a line.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "out"
	}
	return "in"
}

// Lines is the GPIO capability the driver needs.
type Lines interface {
	Configure(role Role, dir Direction) error
	Write(role Role, level Level) error
	Read(role Role) (Level, error)
}

// Bus is the SPI capability the driver needs. Received bytes are ignored.
type Bus interface {
	Begin() error
	SetFrequency(hz uint32) error
	TransferByte(b byte) (byte, error)
	// Transfer writes p in a single transaction.
	Transfer(p []byte) error
}

// Clock provides blocking sleeps and a monotonic time source.
type Clock interface {
	Sleep(d time.Duration)
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
func (SystemClock) Now() time.Time        { return time.Now() }
