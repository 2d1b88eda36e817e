// Command tether-monitor watches a paired Bluetooth device and sounds an
// alarm when it drops out of range, unless the user is inside a safe zone.
//
// Usage:
//
//	tether-monitor [flags]
//
// Flags:
//
//	-config string      Configuration file path (YAML)
//	-peripheral string  Device address, overrides the saved pairing
//	-adapter string     BlueZ adapter (default "hci0")
//	-settings string    User settings file
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-log-format string  Log format: text, json (default "text")
//	-trace string       Write a CBOR event trace to this file
//	-feed string        Serve the websocket event feed on this address
//	-desktop            Also raise desktop notifications
//	-interactive        Run the interactive console
//	-version            Print the version and exit
//
// Every flag can also be set with a TETHER_* environment variable or in the
// configuration file; flags win.
//
// Examples:
//
//	# Monitor a device with the interactive console
//	tether-monitor -peripheral AA:BB:CC:DD:EE:FF -interactive
//
//	# Headless, with a trace and an event feed for dashboards
//	tether-monitor -trace /var/log/tether/trace.cbor -feed 127.0.0.1:8765
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tether-alarm/tether-go/cmd/tether-monitor/interactive"
	"github.com/tether-alarm/tether-go/pkg/alarm"
	"github.com/tether-alarm/tether-go/pkg/bluez"
	"github.com/tether-alarm/tether-go/pkg/config"
	"github.com/tether-alarm/tether-go/pkg/connection"
	"github.com/tether-alarm/tether-go/pkg/feed"
	"github.com/tether-alarm/tether-go/pkg/persistence"
	"github.com/tether-alarm/tether-go/pkg/version"
	"github.com/tether-alarm/tether-go/pkg/zone"
)

// flags holds command-line overrides. Empty values leave the loaded
// configuration untouched.
type flags struct {
	ConfigFile  string
	Peripheral  string
	Adapter     string
	Settings    string
	LogLevel    string
	LogFormat   string
	TraceFile   string
	FeedAddr    string
	Desktop     bool
	Interactive bool
	Version     bool
}

var cli flags

func init() {
	flag.StringVar(&cli.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&cli.Peripheral, "peripheral", "", "Device address, overrides the saved pairing")
	flag.StringVar(&cli.Adapter, "adapter", "", "BlueZ adapter (default \"hci0\")")
	flag.StringVar(&cli.Settings, "settings", "", "User settings file")
	flag.StringVar(&cli.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&cli.LogFormat, "log-format", "", "Log format: text, json")
	flag.StringVar(&cli.TraceFile, "trace", "", "Write a CBOR event trace to this file")
	flag.StringVar(&cli.FeedAddr, "feed", "", "Serve the websocket event feed on this address")
	flag.BoolVar(&cli.Desktop, "desktop", false, "Also raise desktop notifications")
	flag.BoolVar(&cli.Interactive, "interactive", false, "Run the interactive console")
	flag.BoolVar(&cli.Version, "version", false, "Print the version and exit")
}

func main() {
	flag.Parse()
	if cli.Version {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tether-monitor: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, cli)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "tether-monitor: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, cli); err != nil {
		fmt.Fprintf(os.Stderr, "tether-monitor: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags copies non-empty flag values over cfg.
func applyFlags(cfg *config.Config, f flags) {
	if f.Peripheral != "" {
		cfg.Peripheral = f.Peripheral
	}
	if f.Adapter != "" {
		cfg.Adapter = f.Adapter
	}
	if f.Settings != "" {
		cfg.SettingsPath = f.Settings
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFormat != "" {
		cfg.Log.Format = f.LogFormat
	}
	if f.TraceFile != "" {
		cfg.Trace.File = f.TraceFile
	}
	if f.FeedAddr != "" {
		cfg.Feed.Addr = f.FeedAddr
	}
}

func run(cfg *config.Config, f flags) error {
	out := newSwitchWriter(os.Stderr)
	logger := setupLogging(cfg.Log, out)

	logger.Info("tether-monitor starting", "version", version.Version, "adapter", cfg.Adapter)

	trace, closeTrace, err := setupTrace(cfg.Trace, logger)
	if err != nil {
		return err
	}
	defer closeTrace()

	// User settings and safe zones.
	store := persistence.NewSettingsStore(cfg.SettingsPath)
	settings, err := store.LoadOrDefault()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	zones, err := zone.NewManager(settings.SafeZones...)
	if err != nil {
		return fmt.Errorf("load safe zones: %w", err)
	}
	store.PersistZones(zones, func(err error) {
		logger.Warn("failed to save safe zones", "error", err)
	})

	// Radio and location.
	transport, err := bluez.New(bluez.Options{Adapter: cfg.Adapter, Logger: logger, Trace: trace})
	if err != nil {
		return err
	}
	defer transport.Close()

	location, closeLocation, err := setupLocation(cfg.Location, logger)
	if err != nil {
		return err
	}
	defer closeLocation()

	act, err := setupActuator(out, f.Desktop, logger)
	if err != nil {
		return err
	}

	// Engine.
	th := settings.Thresholds
	tracker := connection.NewTracker()
	defer tracker.Close()

	monitor := connection.NewMonitor(connection.MonitorConfig{
		Transport:            transport,
		Tracker:              tracker,
		FailedProbeThreshold: th.FailedProbeThreshold,
		SignalThresholdDbm:   th.SignalThresholdDbm,
		ProbeTimeout:         cfg.Transport.ProbeTimeout,
		Logger:               logger,
		Trace:                trace,
	})
	reconnector := connection.NewReconnector(connection.ReconnectorConfig{
		Transport:      transport,
		Tracker:        tracker,
		ConnectTimeout: cfg.Transport.ConnectTimeout,
		Logger:         logger,
		Trace:          trace,
	})
	defer reconnector.Close()

	coord, err := alarm.New(alarm.Config{
		Monitor:         monitor,
		Reconnector:     reconnector,
		Transport:       transport,
		Actuator:        act,
		Location:        location,
		Zones:           zones,
		Thresholds:      th,
		Settings:        settings.Alarm,
		LocationTimeout: cfg.Location.Timeout,
		Logger:          logger,
		Trace:           trace,
	})
	if err != nil {
		return fmt.Errorf("create coordinator: %w", err)
	}
	defer coord.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(gctx)
	})

	if cfg.Feed.Addr != "" {
		srv := feed.NewServer(tracker, cfg.Feed.Path, logger)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Feed.Addr)
		})
	}

	remember := func(p connection.Peripheral) {
		if err := rememberPeripheral(store, p); err != nil {
			logger.Warn("failed to save pairing", "error", err)
		}
	}

	address := cfg.Peripheral
	if address == "" && settings.Peripheral != nil {
		address = settings.Peripheral.Address
	}

	if f.Interactive {
		console, err := interactive.New(interactive.Options{
			Session:  coord,
			Zones:    zones,
			Location: location,
			Resolve: func(ctx context.Context, addr string) (connection.Peripheral, error) {
				d, err := transport.Lookup(ctx, addr)
				if err != nil {
					return nil, err
				}
				return d, nil
			},
			Devices:        pairedDevices(transport),
			OnConnect:      remember,
			DefaultAddress: address,
		})
		if err != nil {
			return err
		}
		// Route log output through readline to keep the prompt intact.
		out.Set(console.Stdout())
		go console.Run(gctx, cancel)
	} else {
		if address == "" {
			return fmt.Errorf("no peripheral: pass -peripheral or pair one in %s", store.Path())
		}
		g.Go(func() error {
			logStatus(gctx, tracker, logger)
			return nil
		})
		g.Go(func() error {
			connectWithRetry(gctx, coord, transport, address, logger, remember)
			return nil
		})
	}

	<-gctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := coord.Disconnect(shutdownCtx); err != nil {
		logger.Debug("disconnect on shutdown", "error", err)
	}
	coord.Close()
	cancel()

	return g.Wait()
}
