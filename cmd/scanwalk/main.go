package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/scanwalk/engine/internal/config"
	"github.com/scanwalk/engine/internal/logging"
	intOtel "github.com/scanwalk/engine/internal/otel"
)

// Version info. BuildDate can be set at build time via ldflags.
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"
)

// global services
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()
)

const usage = `scanwalk - panorama tour navigation engine

usage: scanwalk <command> [args]

commands:
  validate <poses-file>                 parse a pose listing and report what survives
  inspect  <poses-file> <id> [k]       show a viewpoint, its nearest neighbors and
                                        their projected hotspot placements
  simulate <poses-file> <from> <to>    run a full scripted navigation session
  save     <poses-file> <tour-name>    persist a tour to the configured backend
  load     <tour-name>                  read a tour back from the backend
  visits   <tour-name>                  list recorded viewpoint visits
  version                               print version and build date

configuration is read from scanwalk.cfg.json in the working directory.
`

// initRuntime loads configuration and brings up logging and OTel. Called
// for every command except version, before any work happens.
func initRuntime(configDir string) error {
	if err := config.Load(configDir); err != nil {
		// Defaults are registered before the file read, so a missing
		// config file is survivable. Note it once logging is up.
		defer func() {
			if Logger != nil {
				Logger.Warn("no config file found, using defaults", "error", err)
			}
		}()
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("create logs dir %s: %w", logsDir, err)
	}

	LogFilePath = logging.LogFilePath(logsDir, "scanwalk", SessionStartTime)
	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", LogFilePath, err)
	}

	otelCfg := config.GetOTelConfig()
	OTelProvider, err = intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    LogFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(LogFile, config.GetString("logLevel"), OTelProvider.LoggerProvider())
	Logger = SlogManager.Logger().With("version", Version)

	return nil
}

// shutdown flushes and releases everything initRuntime opened.
func shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if SlogManager != nil {
		if err := SlogManager.Flush(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "scanwalk: log flush: %v\n", err)
		}
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "scanwalk: otel shutdown: %v\n", err)
		}
	}
	if LogFile != nil {
		LogFile.Close()
	}
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if args[0] == "version" {
		fmt.Printf("scanwalk %s (built %s)\n", Version, BuildDate)
		return
	}

	if err := initRuntime("."); err != nil {
		fmt.Fprintf(os.Stderr, "scanwalk: %v\n", err)
		os.Exit(1)
	}

	err := run(args)
	shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "scanwalk: %v\n", err)
		os.Exit(1)
	}
}
