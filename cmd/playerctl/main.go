package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/riskibarqy/baduk-client/internal/app"
	"github.com/riskibarqy/baduk-client/internal/config"
	"github.com/riskibarqy/baduk-client/internal/domain/player"
	"github.com/riskibarqy/baduk-client/internal/observability"
	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/riskibarqy/baduk-client/internal/platform/metrics"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fields := flag.String("fields", "username", "comma separated player fields that must be present")
	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() < 2 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger, shutdownUptrace, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	stopPyroscope, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)
	diag := observability.StartDiagnosticsServer(cfg.MetricsAddr, registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}

	required, err := parseFields(*fields)
	if err == nil {
		err = run(ctx, a, flag.Arg(0), flag.Args()[1:], required)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if closeErr := a.Close(shutdownCtx); closeErr != nil {
		logger.Error("close app", "error", closeErr)
	}
	if stopErr := observability.StopDiagnosticsServer(diag, logger, shutdownTimeout); stopErr != nil {
		logger.Error("stop diagnostics server", "error", stopErr)
	}
	if stopErr := stopPyroscope(); stopErr != nil {
		logger.Warn("stop pyroscope", "error", stopErr)
	}
	if stopErr := shutdownUptrace(shutdownCtx); stopErr != nil {
		logger.Warn("shutdown uptrace", "error", stopErr)
	}

	if err != nil {
		logger.Error("command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, cmd string, args []string, required []player.Field) error {
	switch strings.ToLower(cmd) {
	case "lookup":
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		for _, id := range ids {
			rec, err := a.Players.Fetch(ctx, id, required...)
			if err != nil {
				return fmt.Errorf("fetch player %d: %w", id, err)
			}
			if err := printRecord(rec); err != nil {
				return err
			}
		}
		return nil
	case "whois":
		for _, name := range args {
			rec, err := a.Players.FetchByUsername(ctx, name, required...)
			if err != nil {
				return fmt.Errorf("fetch player %q: %w", name, err)
			}
			if err := printRecord(rec); err != nil {
				return err
			}
		}
		return nil
	case "watch":
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return watch(ctx, a, ids, required)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// watch prints every update to the given players until the context is cancelled.
func watch(ctx context.Context, a *app.App, ids []int64, required []player.Field) error {
	sub := a.Players.NewSubscriber(func(rec *player.Record) {
		if err := printRecord(rec); err != nil {
			logging.Default().Warn("print player update", "player_id", rec.ID, "error", err)
		}
	})
	defer sub.Close()
	sub.On(ids...)

	for _, id := range ids {
		if _, err := a.Players.Fetch(ctx, id, required...); err != nil {
			logging.Default().Warn("initial player fetch failed", "player_id", id, "error", err)
		}
	}

	<-ctx.Done()
	return nil
}

func printRecord(rec *player.Record) error {
	out, err := sonic.Marshal(rec.Patch())
	if err != nil {
		return fmt.Errorf("encode player %d: %w", rec.ID, err)
	}
	fmt.Println(string(out))
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	out := make([]int64, 0, len(args))
	for _, raw := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid player id %q", raw)
		}
		out = append(out, id)
	}
	return out, nil
}

func parseFields(raw string) ([]player.Field, error) {
	var out []player.Field
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f := player.Field(part)
		if !player.KnownField(f) {
			return nil, fmt.Errorf("unknown player field %q", part)
		}
		out = append(out, f)
	}
	return out, nil
}

func printUsage() {
	name := os.Args[0]
	fmt.Fprintf(os.Stderr, "usage: %s [-fields a,b] <lookup|whois|watch> <args...>\n", name)
	fmt.Fprintln(os.Stderr, "examples:")
	fmt.Fprintf(os.Stderr, "  %s lookup 1 2 3\n", name)
	fmt.Fprintf(os.Stderr, "  %s -fields username,ranking,country whois cho\n", name)
	fmt.Fprintf(os.Stderr, "  %s watch 1 2\n", name)
}
