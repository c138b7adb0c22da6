package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"epdacep/internal/config"
	"epdacep/internal/convert"
	"epdacep/internal/epd"
	"epdacep/internal/framebuf"
	"epdacep/internal/hw"
	appLog "epdacep/internal/log"
	"epdacep/internal/render"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type fastClock struct{ now time.Time }

func (c *fastClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }
func (c *fastClock) Now() time.Time        { return c.now }

func newDisplay(t *testing.T, dev epd.DeviceConfig, opts Options) (*Display, *hw.Sim, *epd.Panel) {
	t.Helper()
	sim := hw.NewSim()
	panel := epd.New(dev, sim, sim, &fastClock{})
	if opts.Frame.Mode == "" {
		opts.Frame = config.DefaultConfig().Frame
	}
	return NewDisplay(panel, opts), sim, panel
}

func TestUpdatePresentsTextFrame(t *testing.T) {
	d, sim, _ := newDisplay(t, epd.DeviceConfig{}, Options{})
	ctx := context.Background()
	if err := d.Setup(ctx); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := d.Update(ctx); err != nil {
		t.Fatalf("Update: %v", err)
	}

	want, err := render.BuildColoredTextFrame(nil, render.DefaultLines(), render.DefaultScale)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sim.LastFrame(), want.Bytes()) {
		t.Error("panel received a different frame")
	}
	if d.LastFrame() == nil {
		t.Error("LastFrame not recorded")
	}
	st := d.Status()
	if st.State != "ready" || st.Frames != 1 || st.LastError != "" {
		t.Errorf("status = %+v", st)
	}
}

func TestUpdateStripes(t *testing.T) {
	opts := Options{Frame: config.FrameConfig{Mode: config.ModeStripes}}
	d, sim, _ := newDisplay(t, epd.DeviceConfig{}, opts)
	if err := d.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	frame := sim.LastFrame()
	if len(frame) != framebuf.Size {
		t.Fatalf("len = %d", len(frame))
	}
	if frame[0] != 0x00 || frame[framebuf.Stride-1] != 0x11 {
		t.Errorf("stripe bytes = %#x .. %#x", frame[0], frame[framebuf.Stride-1])
	}
}

func TestUpdateInitializesOnDemand(t *testing.T) {
	d, sim, panel := newDisplay(t, epd.DeviceConfig{}, Options{})
	// No Setup call.
	if err := d.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if panel.State() != epd.Ready || sim.Refreshes() != 1 {
		t.Errorf("state=%v refreshes=%d", panel.State(), sim.Refreshes())
	}
}

func TestUpdateReinitializesAfterRailCut(t *testing.T) {
	dev := epd.DeviceConfig{HasRail: true, PowerOffAfterUpdate: true}
	d, sim, _ := newDisplay(t, dev, Options{})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := d.Update(ctx); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}
	// Each update starts from a cold panel: two register loads.
	n := 0
	for _, c := range sim.Commands() {
		if c == 0xAA {
			n++
		}
	}
	if n != 2 {
		t.Errorf("init sequences = %d, want 2", n)
	}
}

func TestUpdateAllocationFailure(t *testing.T) {
	boom := errors.New("out of memory")
	tests := []struct {
		name  string
		alloc render.Allocator
		cause error
	}{
		{"error", func() (*framebuf.Buffer, error) { return nil, boom }, boom},
		{"wrong size", func() (*framebuf.Buffer, error) { return &framebuf.Buffer{}, nil }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := Options{
				Frame:     config.DefaultConfig().Frame,
				Allocator: tt.alloc,
			}
			d, sim, panel := newDisplay(t, epd.DeviceConfig{}, opts)
			ctx := context.Background()
			if err := d.Setup(ctx); err != nil {
				t.Fatal(err)
			}
			err := d.Update(ctx)
			if !errors.Is(err, render.ErrAllocation) {
				t.Fatalf("err = %v", err)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("cause lost: %v", err)
			}
			if panel.State() != epd.Ready {
				t.Errorf("state = %v, want ready", panel.State())
			}
			if sim.Refreshes() != 0 {
				t.Error("frame presented despite allocation failure")
			}
			if d.Status().LastError == "" {
				t.Error("last error not recorded")
			}
		})
	}
}

func TestUpdateDump(t *testing.T) {
	dir := t.TempDir()
	d, _, _ := newDisplay(t, epd.DeviceConfig{}, Options{DumpDir: dir, Dump: true})
	if err := d.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{convert.RawName, convert.PNGName, convert.BMPName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestUpdateCanceled(t *testing.T) {
	d, sim, _ := newDisplay(t, epd.DeviceConfig{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Update(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if len(sim.Commands()) != 0 {
		t.Error("bus touched after cancel")
	}
}

func TestShutdown(t *testing.T) {
	d, sim, panel := newDisplay(t, epd.DeviceConfig{HasRail: true}, Options{})
	if err := d.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if !sim.Asleep() || panel.Stats().RailOn {
		t.Errorf("asleep=%v rail=%v", sim.Asleep(), panel.Stats().RailOn)
	}
}

type countingJob struct {
	n   atomic.Int32
	err error
}

func (j *countingJob) Update(context.Context) error {
	j.n.Add(1)
	return j.err
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	if _, err := NewScheduler(context.Background(), "every so often", &countingJob{}); err == nil {
		t.Error("expected error")
	}
}

func TestSchedulerRunNow(t *testing.T) {
	job := &countingJob{err: errors.New("bus down")}
	s, err := NewScheduler(context.Background(), "@every 1h", job)
	if err != nil {
		t.Fatal(err)
	}
	s.RunNow()
	if job.n.Load() != 1 {
		t.Errorf("runs = %d", job.n.Load())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, _ = NewScheduler(ctx, "@every 1h", job)
	s.RunNow()
	if job.n.Load() != 1 {
		t.Error("tick ran after cancel")
	}
}

func TestSchedulerTicks(t *testing.T) {
	job := &countingJob{}
	s, err := NewScheduler(context.Background(), "@every 1s", job)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for job.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if job.n.Load() == 0 {
		t.Error("scheduler never ran the job")
	}
}

func TestUpdateStrictRejectsClippedText(t *testing.T) {
	d, sim, panel := newDisplay(t, epd.DeviceConfig{}, Options{Strict: true})
	ctx := context.Background()
	err := d.Update(ctx)
	var verr *framebuf.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *framebuf.ValidationError", err)
	}
	if panel.State() != epd.Ready || sim.Refreshes() != 0 {
		t.Errorf("state=%v refreshes=%d", panel.State(), sim.Refreshes())
	}

	frame := config.DefaultConfig().Frame
	frame.Scale = 3
	d, sim, _ = newDisplay(t, epd.DeviceConfig{}, Options{Frame: frame, Strict: true})
	if err := d.Update(ctx); err != nil {
		t.Fatalf("fitting text: %v", err)
	}
	if sim.Refreshes() != 1 {
		t.Errorf("refreshes = %d", sim.Refreshes())
	}
}
