package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/OCAP2/mapview/internal/analysis"
	"github.com/OCAP2/mapview/internal/config"
	"github.com/OCAP2/mapview/internal/database"
	"github.com/OCAP2/mapview/internal/dispatcher"
	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/internal/handlers"
	"github.com/OCAP2/mapview/internal/influx"
	"github.com/OCAP2/mapview/internal/logging"
	"github.com/OCAP2/mapview/internal/marker"
	"github.com/OCAP2/mapview/internal/monitor"
	intOtel "github.com/OCAP2/mapview/internal/otel"
	"github.com/OCAP2/mapview/internal/session"
	"github.com/OCAP2/mapview/internal/storage"
	"github.com/OCAP2/mapview/pkg/core"

	"github.com/ViBiOh/flags"
)

// Version and BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"
)

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFile *os.File

	sessionCtx      *session.Context
	markers         *marker.Collection
	eventDispatcher *dispatcher.Dispatcher
	storageBackend  storage.Backend
	influxManager   *influx.Manager
	monitorService  *monitor.Service
)

type options struct {
	configDir   *string
	sessionName *string
}

func newOptions(args []string) options {
	fs := flag.NewFlagSet("mapview", flag.ExitOnError)
	fs.Usage = flags.Usage(fs)

	opts := options{
		configDir:   flags.New("Config", "Directory holding "+config.FileName).DocPrefix("mapview").String(fs, ".", nil),
		sessionName: flags.New("Session", "Session name, overrides the config value").DocPrefix("mapview").String(fs, "", nil),
	}

	_ = fs.Parse(args)
	return opts
}

func main() {
	opts := newOptions(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "mapview: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(*opts.configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", *opts.configDir)
	}

	sessionCtx = session.NewContext()
	name := *opts.sessionName
	if name == "" {
		name = config.GetString("sessionName")
	}
	current := sessionCtx.Start(name)

	if err := setupLogging(current); err != nil {
		return err
	}
	defer shutdownLogging()

	Logger.Info("Starting mapview", "version", Version, "build", BuildDate, "session", current.Name)

	level := config.GetString("logLevel")

	markers = marker.NewCollection()
	sessionCtx.Track(markers)

	initStorage(current, database.NewManager(logging.NewInfraLogger(infraOutput(), level, "database")))
	initInflux(ctx, logging.NewInfraLogger(infraOutput(), level, "influx"))
	defer closeOutputs()

	analysisCfg := config.GetAnalysisConfig()
	engine := geo.NewEngine(
		geo.WithSegmentsPerQuadrant(analysisCfg.SegmentsPerQuadrant),
		geo.WithBoundary(core.ParseBoundary(analysisCfg.Boundary)),
	)
	analyzer, err := analysis.New(
		analysis.Dependencies{
			Geometry:  engine,
			Markers:   markers,
			Logger:    Logger,
			SessionID: current.ID,
		},
		analysis.Config{
			MaxRadiusKm:     analysisCfg.MaxRadiusKm,
			ScaleCorrection: analysisCfg.ScaleCorrection,
			Boundary:        engine.Boundary(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	dispatcherLogger := logging.NewDispatcherLogger(logging.NewInfraLogger(infraOutput(), level, "dispatcher"))
	eventDispatcher, err = dispatcher.New(dispatcherLogger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	// queued recordings must land before the outputs close
	defer eventDispatcher.Close()

	monitorDeps := monitor.Dependencies{
		Session:  sessionCtx,
		Markers:  markers,
		Logger:   Logger,
		Interval: config.GetDuration("status.interval"),
	}
	if config.GetBool("status.enabled") {
		monitorDeps.StatusPath = filepath.Join(config.GetString("logsDir"), "status.json")
	}
	if p, ok := storageBackend.(storage.Pender); ok {
		monitorDeps.Pending = p.Pending
	}
	monitorService = monitor.NewService(monitorDeps)
	if err := monitorService.Start(); err != nil {
		Logger.Warn("Failed to start status monitor", "error", err)
	} else if monitorService.IsRunning() {
		Logger.Info("Status monitor started", "path", monitorDeps.StatusPath)
	}
	defer monitorService.Stop()

	deps := handlers.Dependencies{
		Markers:     markers,
		Analyzer:    analyzer,
		Session:     sessionCtx,
		Status:      monitorService,
		Logger:      Logger,
		MaxRadiusKm: analysisCfg.MaxRadiusKm,
	}
	if storageBackend != nil {
		deps.Storage = storageBackend
	}
	if influxManager != nil {
		deps.Metrics = influxManager
	}
	handlers.NewService(deps).Register(eventDispatcher)
	Logger.Info("Handlers registered", "commands", len(eventDispatcher.Commands()))

	// Warm the projection tables so the first analysis does not pay for it.
	readyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := engine.Ready(readyCtx); err != nil {
		Logger.Warn("Projection engine not ready", "error", err)
	}
	cancel()

	sh := newShell(eventDispatcher, in, out)
	if OTelProvider != nil {
		sh.afterExport = OTelProvider.Flush
	}
	return sh.Run(ctx)
}

func setupLogging(current *core.Session) error {
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	logPath := logging.LogFilePath(logsDir, logging.ServiceName, current.StartTime)
	if _, err := os.Stat(logPath); err == nil {
		_ = os.Rename(logPath, logPath+".old")
	}

	var err error
	LogFile, err = os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", logPath)
		LogFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var otelWriter io.Writer
		if LogFile != nil {
			otelWriter = LogFile
		}
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: Version,
			SessionID:      current.ID,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      otelWriter,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	logOpts := logging.Options{
		Level:   config.GetString("logLevel"),
		Context: sessionCtx.Attrs,
	}
	if LogFile != nil {
		logOpts.File = LogFile
	}
	if OTelProvider != nil {
		logOpts.Provider = OTelProvider.LoggerProvider()
	}
	if config.GetBool("graylog.enabled") {
		w, err := logging.NewGraylogWriter(config.GetString("graylog.address"))
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		} else {
			logOpts.Graylog = w
		}
	}

	SlogManager.Setup(logOpts)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logPath)
	return nil
}

func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shut down OTel: %v\n", err)
		}
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

// infraOutput is where the zerolog infrastructure loggers write.
func infraOutput() io.Writer {
	if LogFile != nil {
		return LogFile
	}
	return os.Stderr
}
