package hw

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"epdacep/internal/epd"
)

// rpioPin is the subset of rpio.Pin the backend uses.
type rpioPin interface {
	Input()
	Output()
	High()
	Low()
	PullUp()
	Write(rpio.State)
	Read() rpio.State
}

// RPIO drives the panel through /dev/gpiomem and the BCM2835 SPI0 block.
// go-rpio keeps global state, so only one RPIO may be open at a time.
type RPIO struct {
	pins     map[epd.Role]rpioPin
	startSPI func() error
	spiOn    bool
	closed   bool
}

func startSPI0() error {
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		return err
	}
	rpio.SpiChipSelect(0)
	rpio.SpiMode(0, 0)
	return nil
}

// OpenRPIO maps GPIO memory. SPI0 is started by Begin.
func OpenRPIO(pins Pins) (*RPIO, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("hw: rpio open failed: %w", err)
	}
	r := &RPIO{pins: map[epd.Role]rpioPin{}, startSPI: startSPI0}
	for _, role := range []epd.Role{epd.RoleCS, epd.RoleDC, epd.RoleReset, epd.RoleBusy, epd.RoleRail} {
		if n, ok := pins.For(role); ok {
			r.pins[role] = rpio.Pin(n)
		}
	}
	return r, nil
}

func (r *RPIO) pin(role epd.Role) (rpioPin, error) {
	p, ok := r.pins[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownRole, role)
	}
	return p, nil
}

func (r *RPIO) Configure(role epd.Role, dir epd.Direction) error {
	p, err := r.pin(role)
	if err != nil {
		return err
	}
	if dir == epd.Input {
		p.Input()
		p.PullUp()
		return nil
	}
	p.Output()
	if role == epd.RoleCS {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPIO) Write(role epd.Role, level epd.Level) error {
	p, err := r.pin(role)
	if err != nil {
		return err
	}
	if level == epd.High {
		p.Write(rpio.High)
	} else {
		p.Write(rpio.Low)
	}
	return nil
}

func (r *RPIO) Read(role epd.Role) (epd.Level, error) {
	p, err := r.pin(role)
	if err != nil {
		return epd.Low, err
	}
	return epd.Level(p.Read() == rpio.High), nil
}

func (r *RPIO) Begin() error {
	if r.spiOn {
		return nil
	}
	if err := r.startSPI(); err != nil {
		return fmt.Errorf("hw: rpio spi begin failed: %w", err)
	}
	// SpiBegin moves GPIO 7-11 to the SPI alternate function. CS is framed
	// in software, so take the CS pin back as a plain output.
	if cs, ok := r.pins[epd.RoleCS]; ok {
		cs.Output()
		cs.High()
	}
	r.spiOn = true
	return nil
}

func (r *RPIO) SetFrequency(hz uint32) error {
	if !r.spiOn {
		return fmt.Errorf("hw: rpio spi not started")
	}
	rpio.SpiSpeed(int(hz))
	return nil
}

func (r *RPIO) TransferByte(b byte) (byte, error) {
	if !r.spiOn {
		return 0, fmt.Errorf("hw: rpio spi not started")
	}
	buf := []byte{b}
	rpio.SpiExchange(buf)
	return buf[0], nil
}

func (r *RPIO) Transfer(p []byte) error {
	if !r.spiOn {
		return fmt.Errorf("hw: rpio spi not started")
	}
	rpio.SpiTransmit(p...)
	return nil
}

func (r *RPIO) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.spiOn {
		rpio.SpiEnd(rpio.Spi0)
		r.spiOn = false
	}
	return rpio.Close()
}
