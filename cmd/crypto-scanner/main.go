package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-scanner/internal/alert"
	"crypto-scanner/internal/binance"
	"crypto-scanner/internal/config"
	"crypto-scanner/internal/depth"
	"crypto-scanner/internal/publish"
	"crypto-scanner/internal/scanner"
	"crypto-scanner/internal/server"
	"crypto-scanner/internal/sound"
	"crypto-scanner/internal/state"
	"crypto-scanner/internal/stream"
	"crypto-scanner/internal/ticker"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	cfgPath := os.Getenv("SCANNER_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)

	logger.Info("crypto-scanner starting",
		slog.Int("port", cfg.Port),
		slog.String("rest_url", cfg.Binance.RestURL),
		slog.String("ticker_stream", cfg.Binance.TickerStreamURL),
		slog.String("preferences", cfg.PreferencesFile),
	)

	prefs, err := config.LoadPreferences(cfg.PreferencesFile)
	if err != nil {
		logger.Error("load preferences", slog.String("err", err.Error()))
		os.Exit(1)
	}
	settings := scanner.NewSettings(prefs, cfg.PreferencesFile)

	// State
	st := state.NewState()

	// Upstream
	client := binance.NewClient(cfg.Binance.RestURL, logger)
	streams := stream.NewManager(stream.WebsocketDialer{ReadTimeout: cfg.Stream.ReadTimeout}, cfg.Stream.ReconnectDelay, logger)

	// Scanner
	store := ticker.NewStore()
	engine := alert.NewEngine(cfg.Alerts.FeedTTL)
	monitor := scanner.NewMonitor(streams, cfg.Binance.TickerStreamURL, store, engine, settings, st, cfg.RefreshInterval, logger)

	// Context & signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The tracker only publishes after a Switch, by which point srv is set.
	var srv *server.HTTPServer
	tracker := scanner.NewBookTracker(streams, client, cfg.Binance.StreamURL, cfg.Book, st, logger, func(v depth.View) {
		srv.BroadcastBook(v)
	})

	// Alert cue
	cue, err := sound.Load(cfg.Alerts.SoundFile)
	if err != nil {
		logger.Warn("alert sound", slog.String("err", err.Error()))
	}

	// HTTP server + WS hub
	srv = server.NewHTTPServer(ctx, st, tracker, monitor, engine, settings, client, cue, logger)
	monitor.AddViewSink(srv)
	monitor.AddAlertSink(srv)

	var publisher *publish.AlertPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = publish.NewAlertPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		monitor.AddAlertSink(publisher)
		logger.Info("publishing alerts to kafka",
			slog.Any("brokers", cfg.Kafka.Brokers),
			slog.String("topic", cfg.Kafka.Topic),
		)
	}

	if cfg.Book.DefaultSymbol != "" {
		if _, err := tracker.Switch(ctx, cfg.Book.DefaultSymbol); err != nil {
			logger.Warn("default symbol", slog.String("symbol", cfg.Book.DefaultSymbol), slog.String("err", err.Error()))
		}
	}

	monitorDone := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(monitorDone)
	}()

	// HTTP serving
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		logger.Info("HTTP server listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
			cancel()
		}
		close(done)
	}()

	// Graceful shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shCtx, shCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shCancel()

	_ = httpSrv.Shutdown(shCtx)
	tracker.Stop()
	cancel()
	<-monitorDone
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Warn("kafka close", slog.String("err", err.Error()))
		}
	}
	<-done
	logger.Info("bye")
}
