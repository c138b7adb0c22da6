package epd

import (
	"fmt"
	"sync"
	"time"

	"epdacep/internal/framebuf"
	appLog "epdacep/internal/log"
)

const (
	// DefaultSPIHz is used when DeviceConfig.SPIHz is zero.
	DefaultSPIHz = 2_000_000

	// DefaultBusyTimeout is the number of BUSY polls before giving up (~15s).
	DefaultBusyTimeout = 15000
	// DefaultBusyPoll is the delay between BUSY polls.
	DefaultBusyPoll = time.Millisecond

	// FrameChunk is the CS frame size used for image data.
	FrameChunk = 1024
)

// Power and reset timings.
const (
	railSettle     = 120 * time.Millisecond
	noRailSettle   = 50 * time.Millisecond
	resetHigh      = 20 * time.Millisecond
	resetLow       = 2 * time.Millisecond
	postIdleSettle = 30 * time.Millisecond
	railOffDelay   = 50 * time.Millisecond
)

// DeviceConfig is fixed for the lifetime of a Panel.
type DeviceConfig struct {
	// HasRail is true when a rail-enable line switches panel power.
	HasRail bool
	// SPIHz is the bus clock. Zero selects DefaultSPIHz.
	SPIHz uint32
	// PowerOffAfterUpdate cuts the rail after every frame (needs HasRail).
	PowerOffAfterUpdate bool
	// StrictLength makes Present reject frames that are not framebuf.Size
	// bytes long instead of warning.
	StrictLength bool
	// BusyTimeout is the number of BUSY polls; zero selects DefaultBusyTimeout.
	BusyTimeout int
	// BusyPoll is the delay between polls; zero selects DefaultBusyPoll.
	BusyPoll time.Duration
}

func (c DeviceConfig) spiHz() uint32 {
	if c.SPIHz == 0 {
		return DefaultSPIHz
	}
	return c.SPIHz
}

func (c DeviceConfig) busyTimeout() int {
	if c.BusyTimeout <= 0 {
		return DefaultBusyTimeout
	}
	return c.BusyTimeout
}

func (c DeviceConfig) busyPoll() time.Duration {
	if c.BusyPoll <= 0 {
		return DefaultBusyPoll
	}
	return c.BusyPoll
}

// State of the panel controller.
type State int

const (
	Uninitialized State = iota
	Resetting
	AwaitingIdle
	Initializing
	Ready
	Transferring
	Refreshing
	PoweringDown
	Faulted
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Resetting:     "resetting",
	AwaitingIdle:  "awaiting_idle",
	Initializing:  "initializing",
	Ready:         "ready",
	Transferring:  "transferring",
	Refreshing:    "refreshing",
	PoweringDown:  "powering_down",
	Faulted:       "faulted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Stats are counters exposed for status reporting.
type Stats struct {
	Frames      int
	Timeouts    int
	LastRefresh time.Time
	RailOn      bool
}

// Panel is the controller state machine for one physical panel. Operations
// are synchronous and must not be called concurrently; State and Stats may
// be read from other goroutines.
type Panel struct {
	cfg   DeviceConfig
	lines Lines
	bus   Bus
	clock Clock
	tx    *Transport

	mu    sync.Mutex
	state State
	stats Stats
}

// New builds a Panel. Nothing is sent until Initialize.
func New(cfg DeviceConfig, lines Lines, bus Bus, clock Clock) *Panel {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Panel{
		cfg:   cfg,
		lines: lines,
		bus:   bus,
		clock: clock,
		tx:    NewTransport(lines, bus),
	}
}

// Config returns the device configuration.
func (p *Panel) Config() DeviceConfig { return p.cfg }

// State returns the current controller state.
func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stats returns a copy of the counters.
func (p *Panel) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Panel) setState(s State) {
	p.mu.Lock()
	prev := p.state
	p.state = s
	p.mu.Unlock()
	if prev != s {
		appLog.Debug("epd: state", "from", prev, "to", s)
	}
}

func (p *Panel) setRail(on bool) {
	p.mu.Lock()
	p.stats.RailOn = on
	p.mu.Unlock()
}

// fault marks the panel unusable until the next Initialize.
func (p *Panel) fault(err error) error {
	p.setState(Faulted)
	appLog.Error("epd: bus failure, panel needs re-initialization", err)
	return err
}

// Initialize configures the lines, powers the panel, pulses reset and loads
// the register sequence. It may be called again to recover from Faulted or
// from a panel that stopped reporting idle.
func (p *Panel) Initialize() error {
	start := p.clock.Now()
	p.setState(Resetting)

	for _, role := range []Role{RoleCS, RoleDC, RoleReset} {
		if err := p.lines.Configure(role, Output); err != nil {
			return p.fault(busErr("configure "+role.String(), err))
		}
	}
	if err := p.lines.Configure(RoleBusy, Input); err != nil {
		return p.fault(busErr("configure busy", err))
	}
	if p.cfg.HasRail {
		if err := p.lines.Configure(RoleRail, Output); err != nil {
			return p.fault(busErr("configure rail", err))
		}
		if err := p.lines.Write(RoleRail, Low); err != nil {
			return p.fault(busErr("rail off", err))
		}
		p.setRail(false)
	}

	if err := p.bus.Begin(); err != nil {
		return p.fault(busErr("spi begin", err))
	}
	if err := p.bus.SetFrequency(p.cfg.spiHz()); err != nil {
		return p.fault(busErr("spi frequency", err))
	}

	if p.cfg.HasRail {
		if err := p.lines.Write(RoleRail, High); err != nil {
			return p.fault(busErr("rail on", err))
		}
		p.setRail(true)
		p.clock.Sleep(railSettle)
	} else {
		p.setRail(true)
		p.clock.Sleep(noRailSettle)
	}

	if err := p.reset(); err != nil {
		return p.fault(err)
	}

	p.setState(AwaitingIdle)
	if _, err := p.WaitBusyIdle(); err != nil {
		return p.fault(err)
	}
	p.clock.Sleep(postIdleSettle)

	p.setState(Initializing)
	if err := sendRegisters(p.tx, InitSequence); err != nil {
		return p.fault(err)
	}
	if err := p.tx.SendCommand(CmdPowerOn); err != nil {
		return p.fault(err)
	}
	if _, err := p.WaitBusyIdle(); err != nil {
		return p.fault(err)
	}

	p.setState(Ready)
	appLog.Info("epd: panel initialized",
		"spi_hz", p.cfg.spiHz(),
		"rail", p.cfg.HasRail,
		"elapsed", p.clock.Now().Sub(start),
	)
	return nil
}

// reset drives the RESET pulse train high, low, high.
func (p *Panel) reset() error {
	steps := []struct {
		level Level
		hold  time.Duration
	}{
		{High, resetHigh},
		{Low, resetLow},
		{High, resetHigh},
	}
	for _, s := range steps {
		if err := p.lines.Write(RoleReset, s.level); err != nil {
			return busErr("reset", err)
		}
		p.clock.Sleep(s.hold)
	}
	return nil
}

// WaitBusyIdle polls BUSY (low = busy) until it reads high or the poll budget
// runs out. A timeout is logged and reported as false, never as an error;
// only a failed line read returns an error.
func (p *Panel) WaitBusyIdle() (bool, error) {
	budget := p.cfg.busyTimeout()
	poll := p.cfg.busyPoll()
	start := p.clock.Now()

	for polls := 0; ; polls++ {
		lvl, err := p.lines.Read(RoleBusy)
		if err != nil {
			return false, busErr("read busy", err)
		}
		if lvl == High {
			return true, nil
		}
		if polls >= budget {
			break
		}
		p.clock.Sleep(poll)
	}

	p.mu.Lock()
	p.stats.Timeouts++
	p.mu.Unlock()
	appLog.Warn("epd: timeout waiting for BUSY high",
		"polls", budget,
		"elapsed", p.clock.Now().Sub(start),
		"state", p.State(),
	)
	return false, nil
}

// PresentBuffer sends a full frame.
func (p *Panel) PresentBuffer(buf *framebuf.Buffer) error {
	return p.Present(buf.Bytes())
}

// Present transfers frame, refreshes the panel and stages power-off. The
// frame is expected to be framebuf.Size bytes; other lengths are sent as-is
// with a warning unless StrictLength is set.
func (p *Panel) Present(frame []byte) error {
	if st := p.State(); st != Ready {
		return fmt.Errorf("%w (state %s)", ErrNotReady, st)
	}
	if len(frame) != framebuf.Size {
		if p.cfg.StrictLength {
			return &ValidationError{Got: len(frame), Want: framebuf.Size, Err: ErrInvalidBufferLength}
		}
		appLog.Warn("epd: unexpected frame length", "len", len(frame), "expected", framebuf.Size)
	}
	start := p.clock.Now()

	p.setState(Transferring)
	if err := p.tx.SendCommand(CmdDataStart); err != nil {
		return p.fault(err)
	}
	if err := p.tx.SendDataChunked(frame, FrameChunk); err != nil {
		return p.fault(err)
	}

	p.setState(Refreshing)
	if err := p.tx.SendCommand(CmdRefresh); err != nil {
		return p.fault(err)
	}
	if err := p.tx.SendData(0x00); err != nil {
		return p.fault(err)
	}
	if _, err := p.WaitBusyIdle(); err != nil {
		return p.fault(err)
	}

	p.setState(PoweringDown)
	if err := p.tx.SendCommand(CmdPowerOff); err != nil {
		return p.fault(err)
	}
	if err := p.tx.SendData(0x00); err != nil {
		return p.fault(err)
	}
	if _, err := p.WaitBusyIdle(); err != nil {
		return p.fault(err)
	}

	if p.cfg.PowerOffAfterUpdate && p.cfg.HasRail {
		p.clock.Sleep(railOffDelay)
		if err := p.lines.Write(RoleRail, Low); err != nil {
			return p.fault(busErr("rail off", err))
		}
		p.setRail(false)
		appLog.Debug("epd: rails powered off after update")
	}

	p.mu.Lock()
	p.stats.Frames++
	p.stats.LastRefresh = p.clock.Now()
	p.mu.Unlock()
	p.setState(Ready)

	appLog.Info("epd: frame presented", "bytes", len(frame), "elapsed", p.clock.Now().Sub(start))
	return nil
}

// Sleep puts the controller into deep sleep. Initialize is required to wake it.
func (p *Panel) Sleep() error {
	if st := p.State(); st == Uninitialized || st == Faulted {
		return nil
	}
	if err := p.tx.SendCommand(CmdDeepSleep); err != nil {
		return p.fault(err)
	}
	if err := p.tx.SendData(deepSleepCheck); err != nil {
		return p.fault(err)
	}
	p.setState(Uninitialized)
	appLog.Info("epd: panel in deep sleep")
	return nil
}

// Close cuts the rail, if there is one.
func (p *Panel) Close() error {
	if !p.cfg.HasRail {
		return nil
	}
	if err := p.lines.Write(RoleRail, Low); err != nil {
		return busErr("rail off", err)
	}
	p.setRail(false)
	p.setState(Uninitialized)
	return nil
}
