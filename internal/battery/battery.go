// Package battery reads a PiSugar3-style battery controller over I2C, for
// panels that run from a battery HAT between refreshes.
package battery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddr is the PiSugar3 battery controller address.
const DefaultAddr = 0x57

// PiSugar3 registers.
const (
	regVoltageHigh = 0x22
	regVoltageLow  = 0x23
	regPercent     = 0x2A
)

// Status represents current battery status for the API.
type Status struct {
	// Percent is the battery level in 0–100%.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts.
	VoltageMv int `json:"voltage_mv"`
}

// Reader abstracts how we obtain battery information.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// I2CReader opens the bus on every Read, so a HAT that is re-seated or
// asleep does not leave a stale handle behind.
type I2CReader struct {
	busName string
	addr    uint16
}

// NewI2CReader constructs an I2C-backed Reader.
//
//   - busName: periph.io I2C bus ("" for default, typically /dev/i2c-1)
//   - addr:    7-bit address (0 = DefaultAddr)
func NewI2CReader(busName string, addr uint16) *I2CReader {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &I2CReader{busName: busName, addr: addr}
}

// Read implements Reader.
func (r *I2CReader) Read(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}
	if _, err := host.Init(); err != nil {
		return Status{}, fmt.Errorf("battery: periph host init: %w", err)
	}

	bus, err := i2creg.Open(r.busName)
	if err != nil {
		return Status{}, fmt.Errorf("battery: open i2c bus %q: %w", r.busName, err)
	}
	defer bus.Close()

	return ReadStatus(&i2c.Dev{Bus: bus, Addr: r.addr})
}

// ReadStatus reads voltage and percentage registers from dev.
func ReadStatus(dev conn.Conn) (Status, error) {
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := dev.Tx([]byte{reg}, buf); err != nil {
			return 0, fmt.Errorf("battery: read register %#02x: %w", reg, err)
		}
		return buf[0], nil
	}

	high, err := readReg(regVoltageHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := readReg(regVoltageLow)
	if err != nil {
		return Status{}, err
	}
	pct, err := readReg(regPercent)
	if err != nil {
		return Status{}, err
	}

	return Status{
		Percent:   min(int(pct), 100),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
	}, nil
}

// Cached wraps r so that reads within ttl reuse the previous value. Battery
// status does not need sub-second precision.
type Cached struct {
	r   Reader
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	last      Status
	updatedAt time.Time
}

func NewCached(r Reader, ttl time.Duration) *Cached {
	return &Cached{r: r, ttl: ttl, now: time.Now}
}

func (c *Cached) Read(ctx context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.updatedAt.IsZero() && now.Sub(c.updatedAt) < c.ttl {
		return c.last, nil
	}
	st, err := c.r.Read(ctx)
	if err != nil {
		return Status{}, err
	}
	c.last, c.updatedAt = st, now
	return st, nil
}
