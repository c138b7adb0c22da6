//go:build linux

package hw

import (
	"errors"
	"fmt"
	"io"

	"github.com/warthog618/go-gpiocdev"

	"epdacep/internal/epd"
)

const consumer = "epdacep"

// OpenCdev requests lines from chip through the GPIO character device and
// drives SPI through periph's spidev.
func OpenCdev(chip, spiPort string, pins Pins) (Device, error) {
	lines, err := NewCdevLines(chip, pins)
	if err != nil {
		return nil, err
	}
	bus := NewPeriphBus(spiPort)
	return &split{Lines: lines, Bus: bus, closers: []io.Closer{bus, lines}}, nil
}

// CdevLines holds one requested line per role. Lines are requested on the
// first Configure and reconfigured on later calls.
type CdevLines struct {
	chip    string
	offsets map[epd.Role]int
	lines   map[epd.Role]*gpiocdev.Line
}

func NewCdevLines(chip string, pins Pins) (*CdevLines, error) {
	if chip == "" {
		chip = "gpiochip0"
	}
	c := &CdevLines{
		chip:    chip,
		offsets: map[epd.Role]int{},
		lines:   map[epd.Role]*gpiocdev.Line{},
	}
	for _, role := range []epd.Role{epd.RoleCS, epd.RoleDC, epd.RoleReset, epd.RoleBusy, epd.RoleRail} {
		if n, ok := pins.For(role); ok {
			c.offsets[role] = n
		}
	}
	return c, nil
}

func (c *CdevLines) Configure(role epd.Role, dir epd.Direction) error {
	off, ok := c.offsets[role]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownRole, role)
	}
	initial := 0
	if role == epd.RoleCS {
		initial = 1
	}

	if l, ok := c.lines[role]; ok {
		if dir == epd.Input {
			return l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp)
		}
		return l.Reconfigure(gpiocdev.AsOutput(initial))
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.WithConsumer(consumer)}
	if dir == epd.Input {
		opts = append(opts, gpiocdev.AsInput, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.AsOutput(initial))
	}
	l, err := gpiocdev.RequestLine(c.chip, off, opts...)
	if err != nil {
		return fmt.Errorf("hw: request %s line %s:%d: %w", role, c.chip, off, err)
	}
	c.lines[role] = l
	return nil
}

func (c *CdevLines) line(role epd.Role) (*gpiocdev.Line, error) {
	l, ok := c.lines[role]
	if !ok {
		return nil, fmt.Errorf("hw: %s line not configured", role)
	}
	return l, nil
}

func (c *CdevLines) Write(role epd.Role, level epd.Level) error {
	l, err := c.line(role)
	if err != nil {
		return err
	}
	v := 0
	if level == epd.High {
		v = 1
	}
	return l.SetValue(v)
}

func (c *CdevLines) Read(role epd.Role) (epd.Level, error) {
	l, err := c.line(role)
	if err != nil {
		return epd.Low, err
	}
	v, err := l.Value()
	if err != nil {
		return epd.Low, err
	}
	return epd.Level(v != 0), nil
}

func (c *CdevLines) Close() error {
	var errs []error
	for role, l := range c.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("hw: close %s line: %w", role, err))
		}
	}
	c.lines = map[epd.Role]*gpiocdev.Line{}
	return errors.Join(errs...)
}
