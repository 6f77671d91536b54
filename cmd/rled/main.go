// rled -- RLE link relay daemon (DVB-RCS2 Return Link Encapsulation).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/hnrck/librle/internal/config"
	rlemetrics "github.com/hnrck/librle/internal/metrics"
	"github.com/hnrck/librle/internal/relay"
	"github.com/hnrck/librle/internal/server"
	appversion "github.com/hnrck/librle/internal/version"
)

// shutdownTimeout is the maximum time to wait for the admin HTTP server
// to drain active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Parse flags.
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("rled"))
		return 0
	}

	// 2. Load config.
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	if *printConfig {
		out, err := config.DumpYAML(cfg)
		if err != nil {
			slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to dump configuration",
				slog.String("error", err.Error()),
			)
			return 1
		}
		fmt.Print(out)
		return 0
	}

	// 3. Set up logger with dynamic level support for SIGHUP reload.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("rled starting",
		slog.String("version", appversion.Version),
		slog.String("peer_addr", cfg.Relay.PeerAddr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Bool("alpdu_crc", cfg.Link.UseALPDUCRC),
	)

	// 4. Bind the relay sockets and build the RLE engines.
	rel, err := relay.New(relay.Config{
		SDUListenAddr:   cfg.Relay.SDUListenAddr,
		DeliverAddr:     cfg.Relay.DeliverAddr,
		BurstListenAddr: cfg.Relay.BurstListenAddr,
		PeerAddr:        cfg.Relay.PeerAddr,
		BurstSize:       cfg.Relay.BurstSize,
		FlushInterval:   cfg.Relay.FlushInterval,
	}, cfg.Link.RLE(), logger)
	if err != nil {
		logger.Error("failed to set up relay", slog.String("error", err.Error()))
		return 1
	}

	// 5. Create the Prometheus collector over the relay counters.
	reg := prometheus.NewRegistry()
	rlemetrics.NewCollector(reg, rel)

	// 6. Run relay and servers.
	if err := runServers(cfg, rel, reg, *configPath, logLevel, logger); err != nil {
		logger.Error("rled exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("rled stopped")
	return 0
}

// runServers drives the relay loops and the admin HTTP server under one
// errgroup with a signal-aware context for graceful shutdown.
func runServers(
	cfg *config.Config,
	rel *relay.Relay,
	reg *prometheus.Registry,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rel.Run(gCtx)
	})

	adminSrv := newAdminServer(cfg.Metrics, rel, reg, logger)
	g.Go(func() error {
		logger.Info("admin server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		lc := net.ListenConfig{}
		return listenAndServe(gCtx, &lc, adminSrv, cfg.Metrics.Addr)
	})

	startDaemonGoroutines(gCtx, g, configPath, logLevel, logger)

	notifyReady(logger)

	// Shutdown goroutine: waits for context cancellation.
	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, adminSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startDaemonGoroutines registers the watchdog and SIGHUP reload goroutines.
func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, logger)
		return nil
	})
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd, indicating the daemon has
// completed initialization and is ready to serve.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd, indicating the daemon
// is beginning graceful shutdown.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends periodic watchdog keepalives to systemd.
// The interval is WatchdogSec/2 as recommended by the systemd
// documentation. If the watchdog is not configured, the goroutine exits
// immediately.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload — dynamic log level
// -------------------------------------------------------------------------

// handleSIGHUP listens for SIGHUP and reloads the configuration. Only the
// log level can change at runtime; the link knobs are immutable for the
// lifetime of the engines, so changed link or relay sections take effect
// on the next restart.
// Blocks until the context is cancelled (graceful shutdown).
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")

			newCfg, err := config.Load(configPath)
			if err != nil {
				logger.Error("failed to reload configuration, keeping current settings",
					slog.String("error", err.Error()),
				)
				continue
			}

			oldLevel := logLevel.Level()
			newLevel := config.ParseLogLevel(newCfg.Log.Level)
			logLevel.Set(newLevel)

			logger.Info("configuration reloaded",
				slog.String("old_log_level", oldLevel.String()),
				slog.String("new_log_level", newLevel.String()),
			)
		}
	}
}

// -------------------------------------------------------------------------
// Graceful Shutdown + Server Setup
// -------------------------------------------------------------------------

// gracefulShutdown signals systemd and drains the admin HTTP server. The
// relay loops stop through the already-cancelled context.
func gracefulShutdown(ctx context.Context, logger *slog.Logger, srv *http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	// context.WithoutCancel detaches from the parent's cancellation so we
	// can enforce our own drain timeout.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown admin server: %w", err)
	}
	return nil
}

// listenAndServe creates a TCP listener using the ListenConfig and serves
// HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newAdminServer creates the admin HTTP server. The handler is wrapped
// with h2c so HTTP/2 scrapers and clients work over plaintext.
func newAdminServer(
	cfg config.MetricsConfig,
	src server.StatsSource,
	reg *prometheus.Registry,
	logger *slog.Logger,
) *http.Server {
	handler := server.New(logger, src, reg, cfg.Path)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
