// Package app ties the panel controller to the frame builders: one-time
// setup, periodic updates and the status snapshot served over HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"epdacep/internal/config"
	"epdacep/internal/convert"
	"epdacep/internal/epd"
	"epdacep/internal/framebuf"
	appLog "epdacep/internal/log"
	"epdacep/internal/render"
)

// Options configures a Display.
type Options struct {
	Frame config.FrameConfig
	// DumpDir receives frame.bin/png/bmp after every build when Dump is set.
	DumpDir string
	Dump    bool
	// Allocator defaults to render.HeapAllocator.
	Allocator render.Allocator
	// Strict rejects text frames with lines that do not fit the panel.
	Strict bool
}

// Status is a point-in-time view for the status API.
type Status struct {
	State       string    `json:"state"`
	Frames      int       `json:"frames"`
	Timeouts    int       `json:"timeouts"`
	RailOn      bool      `json:"rail_on"`
	LastRefresh time.Time `json:"last_refresh,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
}

// Display owns the panel for the lifetime of the process. Setup, Update and
// Shutdown are serialized; Status and LastFrame never block on the bus.
type Display struct {
	panel *epd.Panel
	opts  Options

	// op serializes panel operations.
	op sync.Mutex

	mu        sync.RWMutex
	last      *framebuf.Buffer
	lastErr   error
	lastErrAt time.Time
}

func NewDisplay(panel *epd.Panel, opts Options) *Display {
	if opts.Allocator == nil {
		opts.Allocator = render.HeapAllocator
	}
	return &Display{panel: panel, opts: opts}
}

// Setup initializes the panel. It is called once at startup; Update
// re-runs it when the panel needs it.
func (d *Display) Setup(ctx context.Context) error {
	d.op.Lock()
	defer d.op.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.setupLocked()
}

func (d *Display) setupLocked() error {
	if err := d.panel.Initialize(); err != nil {
		d.recordErr(err)
		return fmt.Errorf("app: panel setup: %w", err)
	}
	return nil
}

// needsSetup reports whether the panel must be initialized before the next
// frame: never set up, faulted, asleep, or rail cut after the last update.
func (d *Display) needsSetup() bool {
	switch d.panel.State() {
	case epd.Faulted, epd.Uninitialized:
		return true
	}
	cfg := d.panel.Config()
	return cfg.HasRail && !d.panel.Stats().RailOn
}

// Build renders the configured frame without touching the panel.
func (d *Display) Build() (*framebuf.Buffer, error) {
	if d.opts.Frame.Mode == config.ModeStripes {
		return render.BuildStripeTestFrame(d.opts.Allocator)
	}
	lines, err := d.opts.Frame.RenderLines()
	if err != nil {
		return nil, fmt.Errorf("app: frame lines: %w", err)
	}
	scale := d.opts.Frame.Scale
	if scale == 0 {
		scale = render.DefaultScale
	}
	if d.opts.Strict {
		return render.BuildColoredTextFrameStrict(d.opts.Allocator, lines, scale)
	}
	return render.BuildColoredTextFrame(d.opts.Allocator, lines, scale)
}

// Update builds the configured frame and presents it.
func (d *Display) Update(ctx context.Context) error {
	d.op.Lock()
	defer d.op.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	if d.needsSetup() {
		appLog.Info("app: panel needs initialization", "state", d.panel.State())
		if err := d.setupLocked(); err != nil {
			return err
		}
	}

	buf, err := d.Build()
	if err != nil {
		if errors.Is(err, render.ErrAllocation) {
			appLog.Warn("app: frame skipped", "err", err)
		}
		d.recordErr(err)
		return err
	}

	if d.opts.Dump {
		if paths, err := convert.Dump(d.opts.DumpDir, buf); err != nil {
			appLog.Error("app: frame dump failed", err, "dir", d.opts.DumpDir)
		} else {
			appLog.Debug("app: frame dumped", "files", paths)
		}
	}

	if err := d.panel.PresentBuffer(buf); err != nil {
		d.recordErr(err)
		return fmt.Errorf("app: present: %w", err)
	}

	d.mu.Lock()
	d.last = buf
	d.lastErr = nil
	d.mu.Unlock()

	appLog.Info("app: update complete", "mode", d.opts.Frame.Mode, "elapsed", time.Since(start))
	return nil
}

// Shutdown puts the panel into deep sleep and cuts the rail.
func (d *Display) Shutdown() error {
	d.op.Lock()
	defer d.op.Unlock()
	return errors.Join(d.panel.Sleep(), d.panel.Close())
}

func (d *Display) recordErr(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.lastErrAt = time.Now()
	d.mu.Unlock()
}

// LastFrame returns the last successfully presented frame, or nil.
func (d *Display) LastFrame() *framebuf.Buffer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// Status returns the current snapshot.
func (d *Display) Status() Status {
	st := d.panel.Stats()
	s := Status{
		State:       d.panel.State().String(),
		Frames:      st.Frames,
		Timeouts:    st.Timeouts,
		RailOn:      st.RailOn,
		LastRefresh: st.LastRefresh,
	}
	d.mu.RLock()
	if d.lastErr != nil {
		s.LastError = d.lastErr.Error()
		s.LastErrorAt = d.lastErrAt
	}
	d.mu.RUnlock()
	return s
}
