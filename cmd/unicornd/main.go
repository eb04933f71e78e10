package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/host/v3"

	"unicornhat/internal/anim"
	"unicornhat/internal/config"
	appLog "unicornhat/internal/log"
	"unicornhat/internal/model"
	"unicornhat/internal/panel"
	"unicornhat/internal/schedule"
	"unicornhat/internal/web"
)

var version = "0.1.0-dev"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	dryRun     bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Warn("unknown log level, using info", "log_level", conf.LogLevel)
	}
	appLog.SetLevel(level)

	appLog.Info("unicornd starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"spi_left", conf.SPI.Left,
		"spi_right", conf.SPI.Right,
		"speed_hz", conf.SPI.SpeedHz,
		"brightness", conf.Brightness,
		"rotation", conf.Rotation,
		"mode", conf.Mode,
		"fps", conf.FPS,
		"schedule_count", len(conf.Schedule),
		"once", flags.once,
		"dry_run", flags.dryRun,
	)

	if err := run(conf, flags); err != nil {
		appLog.Error("unicornd failed", err)
		os.Exit(1)
	}
	appLog.Info("unicornd exiting")
}

func run(conf *config.Config, flags flagConfig) error {
	p, err := openPanel(conf, flags.dryRun)
	if err != nil {
		return err
	}
	defer p.Close()

	loc, err := conf.Location()
	if err != nil {
		return err
	}

	if err := p.SetRotation(panel.Rotation(conf.Rotation)); err != nil {
		return err
	}
	brightness := conf.Brightness
	if v, ok := schedule.Current(loc, conf.Schedule, time.Now()); ok {
		brightness = v
	}
	if err := p.SetBrightness(brightness); err != nil {
		return err
	}

	col, err := model.ParseHex(conf.Colour)
	if err != nil {
		return err
	}
	effect, err := anim.ByName(conf.Mode, col)
	if err != nil {
		return err
	}
	player := anim.NewPlayer(p, conf.FPS)
	player.SetEffect(effect)

	if flags.once {
		return player.Step(time.Now())
	}

	sched, err := schedule.New(loc, conf.Schedule, p)
	if err != nil {
		return err
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched.Start()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := sched.Stop(stopCtx); err != nil {
			appLog.Warn("scheduler did not stop in time", "err", err)
		}
	}()

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 2)
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := player.Run(ctx); err != nil {
			errs <- err
			cancel()
		}
	}()

	if conf.Listen != "" {
		srv := web.NewServer(conf, p, player)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				errs <- err
				cancel()
			}
		}()
	} else {
		appLog.Info("HTTP API disabled")
	}

	<-ctx.Done()
	appLog.Info("shutting down")
	wg.Wait()
	close(errs)

	var all []error
	for err := range errs {
		all = append(all, err)
	}
	return errors.Join(all...)
}

func openPanel(conf *config.Config, dryRun bool) (*panel.Panel, error) {
	if dryRun {
		appLog.Info("dry run, SPI writes are discarded")
		return panel.New(discardConn{name: conf.SPI.Left}, discardConn{name: conf.SPI.Right})
	}
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	return panel.Open(&panel.Opts{
		LeftPort:  conf.SPI.Left,
		RightPort: conf.SPI.Right,
		SpeedHz:   conf.SPI.SpeedHz,
	})
}

// discardConn accepts and drops every write.
type discardConn struct {
	name string
}

func (d discardConn) String() string       { return "discard(" + d.name + ")" }
func (d discardConn) Duplex() conn.Duplex  { return conn.Half }
func (d discardConn) Tx(w, r []byte) error { return nil }

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/unicornd/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Render one frame of the configured mode and exit")
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "Do not touch SPI hardware; discard all bus writes")

	flag.Parse()

	return cfg
}
