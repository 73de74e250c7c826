// Command voxwire is the resilient live-audio streaming client: it captures
// PCM audio, computes per-block quality metrics, and streams the audio over a
// duplex WebSocket session to a generative-response service, printing the
// model's text replies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxwire/voxwire/internal/app"
	"github.com/voxwire/voxwire/internal/config"
	"github.com/voxwire/voxwire/internal/health"
	"github.com/voxwire/voxwire/internal/observe"
	"github.com/voxwire/voxwire/pkg/audio"
	"github.com/voxwire/voxwire/pkg/audio/rawfile"
	"github.com/voxwire/voxwire/pkg/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxwire: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxwire: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("voxwire starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Engines ───────────────────────────────────────────────────────────────
	dev := rawfile.New(cfg.Audio.InputPath, cfg.Audio.BlockSize)
	pipeline := audio.NewPipeline(dev,
		audio.WithBlockSize(cfg.Audio.BlockSize),
		audio.WithObserver(metrics),
	)

	sessOpts := []session.Option{session.WithObserver(metrics)}
	if cfg.Session.Model != "" {
		sessOpts = append(sessOpts, session.WithModel(cfg.Session.Model))
	}
	if cfg.Session.BaseURL != "" {
		sessOpts = append(sessOpts, session.WithBaseURL(cfg.Session.BaseURL))
	}
	manager := session.NewManager(cfg.Session.APIKey, sessOpts...)

	application := app.New(pipeline, manager, cfg.Audio.Capture(), cfg.Session.SessionSettings())

	// ── HTTP surface: health + metrics ────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(
		health.PipelineChecker(pipeline),
		health.SessionChecker(manager),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	srv := &http.Server{Addr: listenAddr, Handler: observe.Middleware(metrics)(mux)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
		}
	}()

	// ── Model replies to stdout ───────────────────────────────────────────────
	manager.MessageEvents().Subscribe(func(msg session.Message) {
		if msg.Interrupted {
			slog.Info("model turn interrupted")
		}
		if msg.Text != "" {
			fmt.Println(msg.Text)
		}
	})

	// ── Run ───────────────────────────────────────────────────────────────────
	if err := application.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("startup failed", "err", err)
		application.Stop()
		return 1
	}
	slog.Info("voxwire ready — press Ctrl+C to stop")

	<-ctx.Done()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	application.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}
