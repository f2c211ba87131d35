package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"modrouting-sim/internal/config"
	"modrouting-sim/internal/logging"
	"modrouting-sim/internal/metrics"
	"modrouting-sim/internal/simulation"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML simulation config. Defaults are used when empty.")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error). Overrides the config.")
	logFormat := flag.String("log-format", "", "Log format (console, json). Overrides the config.")
	steps := flag.Int("steps", -1, "Number of simulation steps. Overrides the config.")
	dump := flag.Bool("dump", false, "Print the final routing table.")
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *steps >= 0 {
		cfg.Steps = *steps
	}

	logging.InitLogger(cfg.Log.Level, cfg.Log.Format, nil)
	logger := logging.GetLogger()

	m := metrics.New()
	stopMetrics := func() {}
	if cfg.Metrics.Addr != "" {
		addr, stop, err := serveMetrics(cfg.Metrics.Addr, m, logger)
		if err != nil {
			logger.Error("metrics server failed", "addr", cfg.Metrics.Addr, "error", err)
			os.Exit(1)
		}
		stopMetrics = stop
		logger.Info("serving metrics", "addr", addr)
	}

	if err := run(cfg, logger, m, *dump); err != nil {
		logger.Error("simulation failed", "error", err)
		stopMetrics()
		os.Exit(1)
	}

	if cfg.Metrics.Addr != "" {
		logger.Info("run complete, metrics still served until interrupted")
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
	}
	stopMetrics()
}

// serveMetrics exposes m on addr and returns the bound address and a
// function that shuts the server down.
func serveMetrics(addr string, m *metrics.Metrics, logger logging.Logger) (net.Addr, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", ln.Addr(), "error", err)
		}
	}()
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}
	return ln.Addr(), stop, nil
}

func run(cfg *config.Config, logger logging.Logger, m *metrics.Metrics, dump bool) error {
	sim, err := simulation.NewSimulation(cfg, logger, m)
	if err != nil {
		return err
	}
	if err := sim.Populate(); err != nil {
		return fmt.Errorf("populate: %w", err)
	}
	if err := sim.Run(cfg.Steps); err != nil {
		return err
	}

	// Sweep against the final positions.
	if err := sim.Table().Rebuild(cfg.TxRange); err != nil {
		return err
	}
	sweep, err := simulation.RouteSweep(context.Background(), sim.Table(), runtime.GOMAXPROCS(0))
	if err != nil {
		return fmt.Errorf("route sweep: %w", err)
	}

	fmt.Println("=== SIMULATION REPORT ===")
	fmt.Println(sim.Report())
	fmt.Println("route sweep:", sweep)

	if dump {
		fmt.Println()
		return sim.Table().Dump(os.Stdout)
	}
	return nil
}
