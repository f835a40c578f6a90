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
	"strings"
	"syscall"
	"time"

	carbonpilot "github.com/carbondriven/carbon-pilot"
	"github.com/carbondriven/carbon-pilot/factors"
	"github.com/carbondriven/carbon-pilot/internal/agent"
	"github.com/carbondriven/carbon-pilot/internal/api"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])

		flag.PrintDefaults()

		fmt.Fprint(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprint(os.Stderr, "  AGENT_URL\n")
		fmt.Fprint(os.Stderr, "        orchestration server base url (fallback for -agent.url)\n")
		fmt.Fprint(os.Stderr, "  AGENT_API_KEY\n")
		fmt.Fprint(os.Stderr, "        bearer token sent to the orchestration server\n")
	}

	flagListen := ""
	flagFactorsFile := ""
	flagAgentURL := ""
	flagAgentApp := ""
	flagAgentTimeout := time.Duration(0)
	flagLogLevel := ""
	flagLogFormat := ""

	flag.StringVar(&flagListen, "listen", "0.0.0.0:8080", "addr to listen to")
	flag.StringVar(&flagFactorsFile, "factors.file", "", "emission factor dataset file (embedded dataset if empty)")
	flag.StringVar(&flagAgentURL, "agent.url", "", "orchestration server base url (analysis route disabled if empty)")
	flag.StringVar(&flagAgentApp, "agent.app", "pilot", "agent pipeline app name")
	flag.DurationVar(&flagAgentTimeout, "agent.timeout", 60*time.Second, "analysis pipeline timeout")
	flag.StringVar(&flagLogLevel, "log.level", "info", "log severity (debug, info, warn, error)")
	flag.StringVar(&flagLogFormat, "log.format", "text", "log format (text, json)")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env file: %s\n", err)
		os.Exit(1)
	}

	flag.Parse()

	initLogging(flagLogLevel, flagLogFormat)

	table := loadTable(flagFactorsFile)
	calculator := carbonpilot.NewCalculator(carbonpilot.WithTable(table))

	if flagAgentURL == "" {
		flagAgentURL = os.Getenv("AGENT_URL")
	}

	var agentClient *agent.Client
	if flagAgentURL != "" {
		agentClient = agent.NewClient(ctx,
			agent.WithBaseURL(flagAgentURL),
			agent.WithAppName(flagAgentApp),
			agent.WithTimeout(flagAgentTimeout),
			agent.WithAPIKey(os.Getenv("AGENT_API_KEY")),
		)
	} else {
		slog.Warn("no orchestration server configured, analysis route disabled")
	}

	server := &http.Server{
		Addr:    flagListen,
		Handler: api.NewServer(calculator, table, agentClient).Router(),
	}

	errg, errgctx := errgroup.WithContext(ctx)

	errg.Go(func() error {
		slog.Info("starting carbon pilot", "listen", flagListen, "materials", table.Len())
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	errg.Go(func() error {
		<-errgctx.Done()
		slog.Info("shutting down carbon pilot")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := errg.Wait(); err != nil {
		slog.Error("failed to run carbon pilot", "err", err)
		os.Exit(1)
	}
}

func loadTable(path string) *factors.Table {
	if path == "" {
		return factors.Default()
	}

	table, err := factors.LoadFile(path)
	if err != nil {
		slog.Error("failed to load emission factor dataset", "path", path, "err", err)
		os.Exit(1)
	}

	slog.Info("loaded emission factor dataset", "path", path, "materials", table.Len())
	return table
}

func initLogging(logLevel string, logFormat string) {
	switch logFormat {
	case "text":
		slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level:   slogLevel(logLevel),
			NoColor: !isatty.IsTerminal(os.Stdout.Fd()),
		})))
	case "json":
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slogLevel(logLevel),
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				switch a.Key {
				case slog.LevelKey:
					a.Key = "severity"
					return a
				case slog.MessageKey:
					a.Key = "message"
					return a
				default:
					return a
				}
			},
		})))
	}
}

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	return slog.LevelInfo
}
