package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"epdacep/internal/app"
	"epdacep/internal/battery"
	"epdacep/internal/config"
	"epdacep/internal/epd"
	"epdacep/internal/hw"
	appLog "epdacep/internal/log"
	"epdacep/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values; they override the config file.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	renderOnly bool
	dump       bool
	stripes    bool
}

func main() {
	os.Exit(run())
}

func run() int {
	appLog.Info("epdacep starting", "version", version)

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI flags override the config file.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.renderOnly {
		conf.Device.Backend = "sim"
	}
	if flags.stripes {
		conf.Frame.Mode = config.ModeStripes
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"backend", conf.Device.Backend,
		"spi_hz", conf.Device.SPIHz,
		"rail", conf.Device.Pins.RailEnable,
		"frame_mode", conf.Frame.Mode,
		"scale", conf.Frame.Scale,
		"lines", len(conf.Frame.Lines),
		"once", flags.once,
		"render_only", flags.renderOnly,
		"dump", flags.dump,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	dev, err := hw.Open(conf.Device.HWOptions())
	if err != nil {
		appLog.Error("failed to open display hardware", err, "backend", conf.Device.Backend)
		return 1
	}
	defer func() {
		if err := dev.Close(); err != nil {
			appLog.Error("failed to release hardware", err)
		}
	}()

	panel := epd.New(conf.Device.Panel(), dev, dev, epd.SystemClock{})
	disp := app.NewDisplay(panel, app.Options{
		Frame:   conf.Frame,
		DumpDir: conf.DumpDir,
		Dump:    flags.dump,
		Strict:  conf.Device.StrictValidation,
	})
	defer func() {
		if err := disp.Shutdown(); err != nil {
			appLog.Error("panel shutdown failed", err)
		}
	}()

	if err := disp.Setup(ctx); err != nil {
		// Update retries the setup, so keep running in daemon mode.
		appLog.Error("initial panel setup failed", err)
		if flags.once {
			return 1
		}
	}

	if flags.once {
		if err := disp.Update(ctx); err != nil {
			appLog.Error("update failed", err)
			return 1
		}
		appLog.Info("epdacep exiting (once)")
		return 0
	}

	sched, err := app.NewScheduler(ctx, conf.RefreshCron, disp)
	if err != nil {
		appLog.Error("failed to create scheduler", err)
		return 1
	}
	// First frame right away, then on schedule.
	sched.RunNow()
	sched.Start()

	var wg sync.WaitGroup
	if conf.Listen != "" {
		srv := web.NewServer(conf, disp)
		if conf.Battery.Enabled {
			r := battery.NewI2CReader(conf.Battery.I2CBus, conf.Battery.Addr)
			srv.WithBattery(battery.NewCached(r, 30*time.Second))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				appLog.Error("HTTP server failed", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()

	// Wait for a running refresh before putting the panel to sleep.
	<-sched.Stop().Done()
	wg.Wait()
	appLog.Info("epdacep exiting")
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epdacep/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Present one frame and exit")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Use the simulated panel; do not touch display hardware")
	flag.BoolVar(&cfg.dump, "dump", false, "Dump every frame (frame.bin, frame.png, frame.bmp) to dump_dir")
	flag.BoolVar(&cfg.stripes, "stripes", false, "Show the six-colour stripe test pattern instead of text")

	flag.Parse()

	return cfg
}
