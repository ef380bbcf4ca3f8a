// Command segmenter captures audio, detects speech and streams sealed
// utterances to a transcription backend. Final transcriptions are printed
// to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/longduongbao29/Translator-app-sub001/internal/capture"
	"github.com/longduongbao29/Translator-app-sub001/internal/config"
	"github.com/longduongbao29/Translator-app-sub001/internal/metrics"
	"github.com/longduongbao29/Translator-app-sub001/internal/server"
	"github.com/longduongbao29/Translator-app-sub001/internal/session"
	"github.com/longduongbao29/Translator-app-sub001/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	flag.Parse()

	// Local overrides for endpoint and credentials.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyEnvOverrides(cfg)

	logger := initLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("Audio segmenter starting",
		"source", cfg.Capture.Source,
		"sample_rate", cfg.Capture.SampleRate,
		"transport", cfg.Transport.Mode)

	m := metrics.NewMetrics()

	source, closeSource, err := openSource(cfg.Capture.Source)
	if err != nil {
		logger.Error("Failed to open audio source", "error", err)
		os.Exit(1)
	}
	defer closeSource()

	device := capture.NewPCMDevice(source, capture.PCMConfig{
		SampleRate:    cfg.Capture.SampleRate,
		Channels:      cfg.Capture.Channels,
		ChunkInterval: cfg.Capture.GetChunkInterval(),
	}, logger)

	tr := buildTransport(cfg, logger)

	callbacks := session.Callbacks{
		OnTranscription: func(text string, final bool) {
			if final {
				fmt.Println(text)
			} else {
				logger.Debug("Partial transcription", "text", text)
			}
		},
		OnError: func(err error) {
			logger.Error("Pipeline error", "error", err)
		},
		OnStatusChange: func(state transport.ConnState) {
			logger.Info("Transport state changed", "state", state.String())
		},
	}

	sess, err := session.New(cfg, device, tr, m, callbacks, logger)
	if err != nil {
		logger.Error("Failed to create session", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		logger.Error("Failed to start session", "error", err)
		os.Exit(1)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, cfg, sess, m, logger)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", "error", err)
			sess.Stop()
			os.Exit(1)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		httpServer.Stop(shutdownCtx)
		shutdownCancel()
	}

	if err := sess.Stop(); err != nil {
		logger.Error("Failed to stop session cleanly", "error", err)
	}

	logger.Info("Shutdown complete")
}

func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("SEGMENTER_ENDPOINT"); v != "" {
		cfg.Transport.Endpoint = v
	}
	if v := os.Getenv("SEGMENTER_REST_ENDPOINT"); v != "" {
		cfg.Transport.RestEndpoint = v
	}
	if v := os.Getenv("SEGMENTER_API_KEY"); v != "" {
		cfg.Transport.APIKey = v
	}
	if v := os.Getenv("SEGMENTER_LANGUAGE"); v != "" {
		cfg.Transport.Language = v
	}
}

// openSource resolves the capture source to a reader. "stdin" pipes from a
// recording process, anything else is a raw PCM file path.
func openSource(source string) (io.Reader, func(), error) {
	if source == "stdin" || source == "" {
		return os.Stdin, func() {}, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}
	return f, func() { f.Close() }, nil
}

func buildTransport(cfg *config.Config, logger *slog.Logger) transport.Transport {
	if cfg.Transport.Mode == "rest" {
		return transport.NewRESTTransport(transport.RESTConfig{
			Endpoint:    cfg.Transport.RestEndpoint,
			APIKey:      cfg.Transport.APIKey,
			SendTimeout: cfg.Transport.GetSendTimeout(),
			Format:      cfg.Capture.Format,
		}, logger)
	}

	return transport.NewSocketTransport(transport.SocketConfig{
		Endpoint:       cfg.Transport.Endpoint,
		APIKey:         cfg.Transport.APIKey,
		ConnectTimeout: cfg.Transport.GetConnectTimeout(),
		SendTimeout:    cfg.Transport.GetSendTimeout(),
	}, logger)
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer = os.Stderr
	if cfg.Output == "stdout" {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(output, opts))
	}
	return slog.New(slog.NewTextHandler(output, opts))
}
