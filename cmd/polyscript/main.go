// Command polyscript is an interactive shell over the polyscript executor.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/casualjim/polyscript"
	"github.com/casualjim/polyscript/engine/javascript"
	"github.com/casualjim/polyscript/engine/lua"
	"github.com/casualjim/polyscript/events"
	"github.com/casualjim/polyscript/internal/config"
	"github.com/casualjim/polyscript/pkg/natsx"
	"github.com/casualjim/polyscript/pkg/slogx"
	_ "github.com/joho/godotenv/autoload"
	"github.com/nats-io/nats.go"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

func setupLogging(level slog.Level) *slog.Logger {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	logger := slog.New(zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func main() {
	configPath := flag.String("config", os.Getenv("POLYSCRIPT_CONFIG"), "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := setupLogging(cfg.LogLevel)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("polyscript failed", slogx.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	topic, closeEvents, err := eventTopic(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeEvents()

	exec, err := polyscript.New(
		polyscript.WithLogger(logger),
		polyscript.WithEngine(javascript.Kind, javascript.Factory),
		polyscript.WithEngine(lua.Kind, lua.Factory),
		polyscript.WithDefaultEngine(cfg.Engine),
		polyscript.WithEvents(topic),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := exec.Close(); err != nil {
			logger.Warn("closing executor", slogx.Error(err))
		}
	}()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer func() {
		signal.Stop(interrupts)
		close(interrupts)
	}()
	go func() {
		for range interrupts {
			exec.Interrupt()
		}
	}()

	r := newREPL(exec, os.Stdin, os.Stdout)
	for _, src := range cfg.Prelude {
		r.eval(ctx, src)
	}
	return r.Run(ctx)
}

// eventTopic publishes to NATS when a server is configured. Otherwise events stay
// in process and are logged at debug level.
func eventTopic(ctx context.Context, cfg config.Config, logger *slog.Logger) (events.Topic, func(), error) {
	if cfg.NATSURL != "" {
		conn, err := natsx.NewClient(cfg.NATSURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to nats: %w", err)
		}
		logger.Info("publishing events", slog.String("url", cfg.NATSURL), slog.String("subject", cfg.Subject))
		return events.NATS(conn).Topic(ctx, cfg.Subject), func() { drain(conn, logger) }, nil
	}

	topic := events.Local().Topic(ctx, cfg.Subject)
	sub, err := topic.Subscribe(ctx, events.LoggingHook(logger.With(slogx.LoggerName("events"))))
	if err != nil {
		return nil, nil, err
	}
	return topic, sub.Unsubscribe, nil
}

func drain(conn *nats.Conn, logger *slog.Logger) {
	if err := conn.Drain(); err != nil {
		logger.Warn("draining nats connection", slogx.Error(err))
	}
}
