package hw

import (
	"errors"
	"fmt"
	"sync"

	"epdacep/internal/epd"
)

var (
	errSimNoCS     = errors.New("hw: sim transfer without chip select")
	errSimNotBegun = errors.New("hw: sim transfer before bus begin")
	errSimNotInput = errors.New("hw: sim read from a line not configured as input")
)

// Sim is an in-memory panel. It decodes the command stream far enough to
// keep the last refreshed frame, which backs --render-only and the preview.
type Sim struct {
	// BusyReads is how many BUSY reads report busy after a power or refresh
	// command.
	BusyReads int

	mu        sync.Mutex
	levels    map[epd.Role]epd.Level
	dirs      map[epd.Role]epd.Direction
	begun     bool
	hz        uint32
	commands  []byte
	capturing bool
	frame     []byte
	last      []byte
	refreshes int
	busyLeft  int
	asleep    bool
}

func NewSim() *Sim {
	return &Sim{
		levels: map[epd.Role]epd.Level{},
		dirs:   map[epd.Role]epd.Direction{},
	}
}

func (s *Sim) Configure(role epd.Role, dir epd.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[role] = dir
	if dir == epd.Output {
		s.levels[role] = epd.Level(role == epd.RoleCS)
	}
	return nil
}

func (s *Sim) Write(role epd.Role, level epd.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[role] = level
	if role == epd.RoleReset && level == epd.Low {
		s.asleep = false
	}
	return nil
}

func (s *Sim) Read(role epd.Role) (epd.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir, ok := s.dirs[role]; !ok || dir != epd.Input {
		return epd.Low, fmt.Errorf("%w: %s", errSimNotInput, role)
	}
	if role != epd.RoleBusy {
		return s.levels[role], nil
	}
	if s.busyLeft > 0 {
		s.busyLeft--
		return epd.Low, nil
	}
	return epd.High, nil
}

func (s *Sim) Begin() error {
	s.mu.Lock()
	s.begun = true
	s.mu.Unlock()
	return nil
}

func (s *Sim) SetFrequency(hz uint32) error {
	s.mu.Lock()
	s.hz = hz
	s.mu.Unlock()
	return nil
}

func (s *Sim) TransferByte(b byte) (byte, error) {
	return 0, s.Transfer([]byte{b})
}

func (s *Sim) Transfer(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.levels[epd.RoleCS] != epd.Low {
		return errSimNoCS
	}
	if !s.begun {
		return errSimNotBegun
	}
	if s.levels[epd.RoleDC] == epd.High {
		if s.capturing {
			s.frame = append(s.frame, p...)
		}
		return nil
	}
	for _, cmd := range p {
		s.command(cmd)
	}
	return nil
}

func (s *Sim) command(cmd byte) {
	s.commands = append(s.commands, cmd)
	s.capturing = false
	switch cmd {
	case epd.CmdDataStart:
		s.capturing = true
		s.frame = s.frame[:0]
	case epd.CmdRefresh:
		s.last = append(s.last[:0], s.frame...)
		s.refreshes++
		s.busyLeft = s.BusyReads
	case epd.CmdPowerOn, epd.CmdPowerOff:
		s.busyLeft = s.BusyReads
	case epd.CmdDeepSleep:
		s.asleep = true
	}
}

// LastFrame returns a copy of the most recently refreshed frame, or nil.
func (s *Sim) LastFrame() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	return append([]byte(nil), s.last...)
}

// Refreshes counts refresh commands.
func (s *Sim) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

// Commands returns every command byte received so far.
func (s *Sim) Commands() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.commands...)
}

// Asleep reports whether deep sleep was entered since the last reset.
func (s *Sim) Asleep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asleep
}

// Frequency is the bus clock set by the controller.
func (s *Sim) Frequency() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hz
}

func (s *Sim) Close() error { return nil }
