package hw

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"epdacep/internal/epd"
	appLog "epdacep/internal/log"
)

var (
	hostOnce sync.Once
	hostErr  error
)

func initHost() error {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return fmt.Errorf("hw: periph host init failed: %w", hostErr)
	}
	return nil
}

// OpenPeriph opens periph GPIO lines and the SPI port named port.
func OpenPeriph(port string, pins Pins) (Device, error) {
	lines, err := NewPeriphLines(pins)
	if err != nil {
		return nil, err
	}
	bus := NewPeriphBus(port)
	return &split{Lines: lines, Bus: bus, closers: []io.Closer{bus}}, nil
}

// PeriphLines resolves pins through gpioreg ("GPIO<n>").
type PeriphLines struct {
	pins map[epd.Role]gpio.PinIO
}

func NewPeriphLines(pins Pins) (*PeriphLines, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	l := &PeriphLines{pins: map[epd.Role]gpio.PinIO{}}
	for _, role := range []epd.Role{epd.RoleCS, epd.RoleDC, epd.RoleReset, epd.RoleBusy, epd.RoleRail} {
		n, ok := pins.For(role)
		if !ok {
			continue
		}
		name := fmt.Sprintf("GPIO%d", n)
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("hw: gpio %s (%s) not found", name, role)
		}
		l.pins[role] = p
	}
	return l, nil
}

func (l *PeriphLines) pin(role epd.Role) (gpio.PinIO, error) {
	p, ok := l.pins[role]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownRole, role)
	}
	return p, nil
}

func (l *PeriphLines) Configure(role epd.Role, dir epd.Direction) error {
	p, err := l.pin(role)
	if err != nil {
		return err
	}
	if dir == epd.Input {
		return p.In(gpio.PullUp, gpio.NoEdge)
	}
	// CS idles high, everything else starts low.
	return p.Out(toGPIO(role == epd.RoleCS))
}

func (l *PeriphLines) Write(role epd.Role, level epd.Level) error {
	p, err := l.pin(role)
	if err != nil {
		return err
	}
	return p.Out(toGPIO(bool(level)))
}

func (l *PeriphLines) Read(role epd.Role) (epd.Level, error) {
	p, err := l.pin(role)
	if err != nil {
		return epd.Low, err
	}
	return epd.Level(p.Read() == gpio.High), nil
}

func toGPIO(high bool) gpio.Level {
	if high {
		return gpio.High
	}
	return gpio.Low
}

// PeriphBus is a spidev port. The connection is made on the first
// SetFrequency, since periph only allows one Connect per port.
type PeriphBus struct {
	name string
	port spi.PortCloser
	conn spi.Conn
	hz   uint32
	buf  [1]byte
}

func NewPeriphBus(name string) *PeriphBus {
	return &PeriphBus{name: name}
}

func (b *PeriphBus) Begin() error {
	if b.port != nil {
		return nil
	}
	if err := initHost(); err != nil {
		return err
	}
	p, err := spireg.Open(b.name)
	if err != nil {
		return fmt.Errorf("hw: failed to open SPI port %q: %w", b.name, err)
	}
	b.port = p
	return nil
}

func (b *PeriphBus) SetFrequency(hz uint32) error {
	if b.port == nil {
		return fmt.Errorf("hw: spi port not open")
	}
	if b.conn != nil {
		if hz == b.hz {
			return nil
		}
		return fmt.Errorf("hw: spi already connected at %d Hz", b.hz)
	}
	c, err := b.port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return fmt.Errorf("hw: failed to connect SPI: %w", err)
	}
	b.conn = c
	b.hz = hz
	if l, ok := c.(conn.Limits); ok {
		appLog.Debug("hw: spi connected", "hz", hz, "max_tx", l.MaxTxSize())
	}
	return nil
}

func (b *PeriphBus) TransferByte(v byte) (byte, error) {
	if b.conn == nil {
		return 0, fmt.Errorf("hw: spi not connected")
	}
	b.buf[0] = v
	rx := [1]byte{}
	if err := b.conn.Tx(b.buf[:], rx[:]); err != nil {
		return 0, err
	}
	return rx[0], nil
}

// Transfer splits p at the driver's maximum transaction size.
func (b *PeriphBus) Transfer(p []byte) error {
	if b.conn == nil {
		return fmt.Errorf("hw: spi not connected")
	}
	limit := len(p)
	if l, ok := b.conn.(conn.Limits); ok && l.MaxTxSize() > 0 {
		limit = l.MaxTxSize()
	}
	for len(p) > 0 {
		n := min(limit, len(p))
		if err := b.conn.Tx(p[:n], nil); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (b *PeriphBus) Close() error {
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port, b.conn = nil, nil
	return err
}
