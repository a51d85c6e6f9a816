// Command txsim runs the transmitter task set on a hosted machine.
//
// The heartbeat timer, the tasks and the health monitor run exactly as on the
// radio; the application callbacks are a small simulation. An SBUS receiver
// on a serial port can drive the mixer.
//
// Usage:
//
//	txsim [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-log-level string  Log level: debug, info, warn, error
//	-metrics string    Prometheus listen address, e.g. :9100
//	-sbus string       SBUS serial port, e.g. /dev/ttyUSB0
//	-report string     Append health reports to this CBOR file
//	-heap int          Kernel heap size in bytes (0 = unbounded)
//	-pin               Pin task threads to cores
//	-console           Interactive console
//
// Examples:
//
//	# Default firmware table, reports every 5 s
//	txsim
//
//	# SBUS input, metrics and a report log
//	txsim -sbus /dev/ttyUSB0 -metrics :9100 -report health.cbor -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	txcore "github.com/Swind/go-txcore"
	"github.com/Swind/go-txcore/config"
	"github.com/Swind/go-txcore/core"
	"github.com/Swind/go-txcore/health"
	"github.com/Swind/go-txcore/hwtimer"
	"github.com/Swind/go-txcore/input"
	txprom "github.com/Swind/go-txcore/observability/prometheus"
	"github.com/Swind/go-txcore/tasks"
)

// flags holds the command line. Values override the configuration file only
// when the flag was given.
type flags struct {
	configFile string
	logLevel   string
	metrics    string
	sbus       string
	report     string
	heap       int
	pin        bool
	console    bool
}

var opts flags

func init() {
	flag.StringVar(&opts.configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&opts.metrics, "metrics", "", "Prometheus listen address")
	flag.StringVar(&opts.sbus, "sbus", "", "SBUS serial port")
	flag.StringVar(&opts.report, "report", "", "Append health reports to this CBOR file")
	flag.IntVar(&opts.heap, "heap", 0, "Kernel heap size in bytes (0 = unbounded)")
	flag.BoolVar(&opts.pin, "pin", false, "Pin task threads to cores")
	flag.BoolVar(&opts.console, "console", false, "Interactive console")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	level, err := core.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	var console *Console
	var logOut io.Writer = os.Stderr
	if opts.console {
		console, err = NewConsole()
		if err != nil {
			log.Fatalf("Failed to start console: %v", err)
		}
		logOut = console.Stderr()
	}
	logger := core.NewSlogLogger(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: level,
	})))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, cfg, logger, console); err != nil {
		logger.Error("txsim stopped", core.F("error", err))
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		var err error
		if cfg, err = config.Load(opts.configFile); err != nil {
			return config.Config{}, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.Log.Level = opts.logLevel
		case "metrics":
			cfg.Metrics.Listen = opts.metrics
		case "sbus":
			cfg.SBUS.Port = opts.sbus
		case "report":
			cfg.Health.ReportFile = opts.report
		case "heap":
			cfg.HeapSize = opts.heap
		case "pin":
			cfg.PinThreads = opts.pin
		}
	})
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cancel context.CancelFunc, cfg config.Config, logger core.Logger, console *Console) error {
	reg := prom.NewRegistry()
	exporter, err := txprom.NewMetricsExporter("", reg, txprom.ExporterOptions{})
	if err != nil {
		return err
	}

	sim := newSimulator(logger)
	wdt := hwtimer.NewWatchdog(cfg.Watchdog.Timeout, nil, logger)

	var preWait tasks.Hooks
	var sbus *input.SBUSReader
	if cfg.SBUS.Port != "" {
		sbus, err = input.OpenSBUS(cfg.SBUS.Port, nil, logger)
		if err != nil {
			// Recoverable: run without receiver input.
			logger.Error("sbus disabled", core.F("error", err))
		} else {
			sbus.Apply = sim.applyFrame
			preWait = append(preWait, sbus.Hook())
		}
	}

	sys, err := txcore.BringUp(ctx, cfg, sim.application(wdt, preWait),
		txcore.WithLogger(logger),
		txcore.WithMetrics(exporter),
	)
	if err != nil {
		if sbus != nil {
			_ = sbus.Close()
		}
		return err
	}
	defer sys.Shutdown()

	wdt.Start()
	defer wdt.Stop()

	if sbus != nil {
		sbus.SetCapture(sys.Capture())
		go func() {
			if err := sbus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("sbus reader stopped", core.F("error", err))
			}
		}()
	}

	sinks := []health.Sink{health.NewLogSink(logger)}
	if cfg.Health.ReportFile != "" {
		reports, err := health.OpenCBORFile(cfg.Health.ReportFile)
		if err != nil {
			logger.Error("health report file disabled", core.F("error", err))
		} else {
			defer reports.Close()
			sinks = append(sinks, reports)
		}
	}
	monitor := health.NewMonitor(sys, logger, sinks...)
	monitor.Interval = cfg.Health.Interval
	monitor.Clock = sys.Kernel().Clock()

	poller, err := txprom.NewSnapshotPoller(reg, time.Second)
	if err != nil {
		return err
	}
	poller.AddSystem("txsim", monitor)
	for _, sem := range sys.Kernel().Semaphores() {
		poller.AddSemaphore(sem.Name(), sem)
	}
	poller.Start(ctx)
	defer poller.Stop()

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, reg, logger)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if console != nil {
		console.Attach(sys, monitor)
		go console.Run(ctx, cancel)
	}

	logger.Info("txsim running", core.F("session", sys.SessionID()))
	// The health loop is the lowest-priority context: it owns the main goroutine.
	if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(addr string, reg *prom.Registry, logger core.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics listening", core.F("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", core.F("error", err))
		}
	}()
	return srv
}
