// Messengerd is a command-driven chat backend.
//
// It receives decoded platform messages on a webhook, interprets
// structured commands against an in-memory task ledger, forwards
// free-form questions to Gemini, and runs a background scheduler that
// fans weekly reminders out to every sender seen so far. Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	messengerd serve     Start the webhook server and scheduler
//	messengerd version   Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/durkdan/messenger-gpt/internal/answer"
	"github.com/durkdan/messenger-gpt/internal/buildinfo"
	"github.com/durkdan/messenger-gpt/internal/command"
	"github.com/durkdan/messenger-gpt/internal/config"
	"github.com/durkdan/messenger-gpt/internal/events"
	"github.com/durkdan/messenger-gpt/internal/ledger"
	"github.com/durkdan/messenger-gpt/internal/platform"
	"github.com/durkdan/messenger-gpt/internal/registry"
	"github.com/durkdan/messenger-gpt/internal/reminder"
	"github.com/durkdan/messenger-gpt/internal/timeapi"
	"github.com/durkdan/messenger-gpt/internal/webhook"
)

// main constructs the OS-level environment and delegates to run so the
// full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run concurrently from tests, and the argument surface here is
// tiny.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var cmd string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && cmd == "":
			cmd = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch cmd {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "", "help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "messengerd - command-driven chat backend")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: messengerd [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve     Start the webhook server and reminder scheduler")
	fmt.Fprintln(w, "  version   Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	return nil
}

// runServe is the primary operating mode: loads config, wires the
// shared ledger and sender registry into the router and scheduler,
// starts the webhook server, and blocks until a shutdown signal.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	// A .env in the working directory supplies ${VAR} values the YAML
	// config references; absence is fine.
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(stdout, "loaded environment from .env")
	}

	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting messengerd",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	// Reconfigure now that the desired level is known. The initial
	// Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		// Already validated by config.Validate, so the error path is
		// unreachable in practice.
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "model", cfg.Gemini.Model)

	bus := events.New()

	// Shared state. One ledger and one sender registry serve both the
	// request path and the scheduler.
	led := ledger.New()
	senders := registry.New()

	// --- Delivery ---
	// With a broker configured, replies and reminders publish to MQTT;
	// otherwise deliveries are logged, which is enough for development
	// since command replies also ride the webhook response.
	var deliver platform.Sender
	var mqttSender *platform.MQTTSender
	if cfg.MQTT.Broker != "" {
		mqttSender = platform.NewMQTTSender(cfg.MQTT, logger)
		if err := mqttSender.Start(ctx); err != nil {
			return fmt.Errorf("start mqtt sender: %w", err)
		}
		deliver = mqttSender
		logger.Info("mqtt delivery enabled", "broker", cfg.MQTT.Broker, "device", cfg.MQTT.DeviceName)
	} else {
		deliver = platform.NewLogSender(logger)
		logger.Info("mqtt delivery disabled (no broker configured)")
	}

	// --- Time source ---
	clock := timeapi.NewClient(cfg.TimeAPI, logger)

	// --- Answer resolver ---
	provider := answer.NewGeminiProvider(cfg.Gemini, logger)
	resolver := answer.NewResolver(provider, cfg.Resolver, logger, bus)

	// --- Reminder scheduler ---
	sched := reminder.New(
		clock,
		senders,
		deliver,
		time.Duration(cfg.Reminder.TickSec)*time.Second,
		cfg.Reminder.DutyMessage,
		logger,
		bus,
	)
	go sched.Run(ctx)

	// --- Command router ---
	router := command.NewRouter(logger, command.Deps{
		Ledger:   led,
		Senders:  senders,
		Resolver: resolver,
		Clock:    clock,
		Jobs:     sched,
		Notifier: deliver,
		Bus:      bus,
	})

	// --- Webhook server ---
	server := webhook.NewServer(cfg.Listen.Address, cfg.Listen.Port, cfg.Listen.VerifyToken, router, bus, logger)

	// --- Signal handling and graceful shutdown ---
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if mqttSender != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := mqttSender.Stop(stopCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("messengerd stopped")
	return nil
}

// newLogger creates a structured text logger writing to w at the given
// level. All log output goes through slog.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
