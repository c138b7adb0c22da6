// Package hw provides the GPIO/SPI backends behind epd.Lines and epd.Bus.
//
// Backends:
//   - "periph":   periph.io sysfs/mmap GPIO + spidev (default)
//   - "rpio":     go-rpio BCM2835 register access (Pi 1-4)
//   - "gpiocdev": GPIO character device lines + periph spidev (Pi 5)
//   - "sim":      in-memory panel, no hardware required
package hw

import (
	"errors"
	"fmt"
	"io"

	"epdacep/internal/epd"
)

// NoRail marks a board without a rail-enable line.
const NoRail = -1

// Pins are BCM GPIO numbers (gpiochip offsets for the gpiocdev backend).
type Pins struct {
	CS    int
	DC    int
	Reset int
	Busy  int
	Rail  int
}

// DefaultPins is the Waveshare e-Paper HAT wiring.
var DefaultPins = Pins{CS: 8, DC: 25, Reset: 17, Busy: 24, Rail: NoRail}

// HasRail reports whether a rail-enable line is wired.
func (p Pins) HasRail() bool { return p.Rail >= 0 }

// For returns the pin number of role.
func (p Pins) For(role epd.Role) (int, bool) {
	switch role {
	case epd.RoleCS:
		return p.CS, true
	case epd.RoleDC:
		return p.DC, true
	case epd.RoleReset:
		return p.Reset, true
	case epd.RoleBusy:
		return p.Busy, true
	case epd.RoleRail:
		return p.Rail, p.HasRail()
	}
	return 0, false
}

// Validate rejects negative or duplicated pins.
func (p Pins) Validate() error {
	seen := map[int]epd.Role{}
	for _, role := range []epd.Role{epd.RoleCS, epd.RoleDC, epd.RoleReset, epd.RoleBusy, epd.RoleRail} {
		n, ok := p.For(role)
		if !ok {
			continue
		}
		if n < 0 {
			return fmt.Errorf("hw: %s pin %d is negative", role, n)
		}
		if other, dup := seen[n]; dup {
			return fmt.Errorf("hw: pin %d used for both %s and %s", n, other, role)
		}
		seen[n] = role
	}
	return nil
}

// Options selects and configures a backend.
type Options struct {
	Backend  string
	SPIPort  string // periph spireg name, "" = first port
	GPIOChip string // gpiocdev only, e.g. "gpiochip0"
	Pins     Pins
}

// Device is an opened backend.
type Device interface {
	epd.Lines
	epd.Bus
	io.Closer
}

var errUnknownRole = errors.New("hw: role not wired")

// ErrUnknownBackend is returned by Open for unsupported backend names.
var ErrUnknownBackend = errors.New("hw: unknown backend")

// Open returns the backend named in opts.
func Open(opts Options) (Device, error) {
	if err := opts.Pins.Validate(); err != nil {
		return nil, err
	}
	switch opts.Backend {
	case "", "periph":
		return OpenPeriph(opts.SPIPort, opts.Pins)
	case "rpio":
		r, err := OpenRPIO(opts.Pins)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "gpiocdev":
		return OpenCdev(opts.GPIOChip, opts.SPIPort, opts.Pins)
	case "sim":
		return NewSim(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// split joins a lines backend and a bus backend into a Device.
type split struct {
	epd.Lines
	epd.Bus
	closers []io.Closer
}

func (s *split) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
