package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/tether-alarm/tether-go/pkg/actuator"
	"github.com/tether-alarm/tether-go/pkg/alarm"
	"github.com/tether-alarm/tether-go/pkg/bluez"
	"github.com/tether-alarm/tether-go/pkg/config"
	"github.com/tether-alarm/tether-go/pkg/connection"
	"github.com/tether-alarm/tether-go/pkg/location"
	tlog "github.com/tether-alarm/tether-go/pkg/log"
	"github.com/tether-alarm/tether-go/pkg/persistence"
)

// lastKnownMaxAge bounds how old a cached fix may be when GeoClue fails.
const lastKnownMaxAge = 5 * time.Minute

// switchWriter lets log output move to the console once it exists.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSwitchWriter(w io.Writer) *switchWriter {
	return &switchWriter{w: w}
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func setupLogging(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// setupTrace combines the optional trace file with the optional console
// mirror. The returned func closes the file.
func setupTrace(cfg config.TraceConfig, logger *slog.Logger) (tlog.Logger, func(), error) {
	var sinks []tlog.Logger
	closeFn := func() {}

	if cfg.File != "" {
		fl, err := tlog.NewFileLogger(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file: %w", err)
		}
		sinks = append(sinks, fl)
		closeFn = func() {
			if err := fl.Close(); err != nil {
				logger.Warn("closing trace file", "error", err)
			}
		}
		logger.Info("tracing events", "file", cfg.File)
	}
	if cfg.Console {
		sinks = append(sinks, tlog.NewSlogAdapter(logger))
	}

	if len(sinks) == 0 {
		return tlog.NoopLogger{}, closeFn, nil
	}
	return tlog.NewMultiLogger(sinks...), closeFn, nil
}

// setupLocation builds the configured provider. A nil provider means every
// lookup fails, which the coordinator treats as outside all zones.
func setupLocation(cfg config.LocationConfig, logger *slog.Logger) (alarm.LocationProvider, func(), error) {
	noop := func() {}
	switch cfg.Source {
	case config.LocationStatic:
		s, err := location.NewStatic(cfg.Latitude, cfg.Longitude)
		if err != nil {
			return nil, noop, err
		}
		return s, noop, nil

	case config.LocationGeoClue:
		g, err := location.NewGeoClue(location.GeoClueOptions{DesktopID: cfg.DesktopID, Logger: logger})
		if err != nil {
			logger.Warn("location unavailable, safe zones will not match", "error", err)
			return nil, noop, nil
		}
		closeFn := func() {
			if err := g.Close(); err != nil {
				logger.Debug("closing geoclue client", "error", err)
			}
		}
		return location.NewLastKnown(g, lastKnownMaxAge), closeFn, nil

	default:
		return nil, noop, nil
	}
}

func setupActuator(out io.Writer, desktop bool, logger *slog.Logger) (alarm.Actuator, error) {
	console := actuator.NewConsole(out)
	if !desktop {
		return console, nil
	}
	d, err := actuator.NewDesktop("tether")
	if err != nil {
		logger.Warn("desktop notifications unavailable", "error", err)
		return console, nil
	}
	return actuator.NewMulti(console, d), nil
}

func rememberPeripheral(store *persistence.SettingsStore, p connection.Peripheral) error {
	return store.Update(func(u *persistence.UserSettings) error {
		if u.Peripheral != nil && u.Peripheral.Address == p.ID() {
			return nil
		}
		rec := &persistence.PeripheralRecord{Address: p.ID(), PairedAt: time.Now()}
		if d, ok := p.(*bluez.Device); ok {
			rec.Name = d.Name
		}
		u.Peripheral = rec
		return nil
	})
}

func pairedDevices(t *bluez.Transport) func(ctx context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		devices, err := t.PairedDevices(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(devices))
		for i, d := range devices {
			out[i] = d.String()
		}
		return out, nil
	}
}
