package app

import (
	"context"
	"time"

	crerr "github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/riskibarqy/baduk-client/internal/config"
	"github.com/riskibarqy/baduk-client/internal/domain/player"
	"github.com/riskibarqy/baduk-client/internal/game"
	"github.com/riskibarqy/baduk-client/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/baduk-client/internal/platform/batch"
	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/riskibarqy/baduk-client/internal/playercache"
	"github.com/riskibarqy/baduk-client/internal/request"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
)

const dbPingTimeout = 5 * time.Second

// App owns the long-lived client services and their shutdown order.
type App struct {
	Config    config.Config
	Transport *request.HTTPTransport
	Requests  *request.Coordinator
	Players   *playercache.Cache

	logger    *logging.Logger
	db        *sqlx.DB
	snapshots player.SnapshotRepository
}

// New wires the transport, request coordinator and player cache. When DB_URL is set the
// cache is warmed from the snapshot store; a store that cannot be reached is logged and
// skipped rather than failing startup.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	transport, err := request.NewHTTPTransport(request.HTTPTransportConfig{
		BaseURL:        cfg.APIBaseURL,
		Timeout:        cfg.APITimeout,
		CSRFCookie:     cfg.APICSRFCookie,
		CSRFHeader:     cfg.APICSRFHeader,
		Logger:         logger,
		CircuitBreaker: cfg.CircuitBreaker(),
	})
	if err != nil {
		return nil, crerr.Wrap(err, "build api transport")
	}

	requests := request.NewCoordinator(transport, request.Config{
		APIRoot: cfg.APIRoot,
		Logger:  logger,
	})

	players, err := playercache.New(requests, playercache.Config{
		BulkPath:   cfg.PlayerBulkPath,
		SearchPath: cfg.PlayerSearchPath,
		ChunkSize:  cfg.PlayerChunkSize,
		Scheduler:  batch.TimerScheduler{Delay: cfg.PlayerBatchWindow},
		MaxQueued:  cfg.PlayerBatchMaxItems,
		Workers:    cfg.PlayerFetchWorkers,
		Logger:     logger,
	})
	if err != nil {
		requests.Close()
		return nil, crerr.Wrap(err, "build player cache")
	}

	a := &App{
		Config:    cfg,
		Transport: transport,
		Requests:  requests,
		Players:   players,
		logger:    logger.Named("app"),
	}

	if cfg.SnapshotsEnabled() {
		if err := a.openSnapshots(ctx); err != nil {
			a.logger.Warn("player snapshot store unavailable", "error", err)
		} else {
			a.warm(ctx)
		}
	}

	return a, nil
}

// NewGameController attaches a controller to engine using the configured autoplay delay.
func (a *App) NewGameController(engine game.Engine, audio game.AudioSink) *game.Controller {
	return game.NewController(engine, game.Config{
		AutoplayDelay: a.Config.AutoplayDelay,
		Audio:         audio,
		Logger:        a.logger,
	})
}

// Close cancels outstanding requests, persists the cache when a store is configured and
// releases pools and connections.
func (a *App) Close(ctx context.Context) error {
	a.Players.Close()
	a.Requests.Close()

	var errs error
	if a.snapshots != nil {
		records := a.Players.Records()
		if err := a.snapshots.UpsertMany(ctx, records); err != nil {
			errs = crerr.CombineErrors(errs, crerr.Wrap(err, "persist player snapshots"))
		} else {
			a.logger.Info("player snapshots saved", "records", len(records))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = crerr.CombineErrors(errs, crerr.Wrap(err, "close snapshot db"))
		}
	}
	return errs
}

func (a *App) openSnapshots(ctx context.Context) error {
	dsn := snapshotDSN(a.Config.DBURL, a.Config.ServiceName, a.Config.DBDisablePreparedBinary)
	db, err := otelsqlx.Open("postgres", dsn,
		otelsql.WithDBSystem("postgresql"),
		otelsql.WithDBName(snapshotDBName(dsn)),
		otelsql.WithQueryFormatter(traceSnapshotQuery),
	)
	if err != nil {
		return crerr.Wrap(err, "open snapshot db")
	}

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return crerr.Wrap(err, "ping snapshot db")
	}

	a.db = db
	a.snapshots = postgres.NewPlayerSnapshotRepository(db)
	return nil
}

func (a *App) warm(ctx context.Context) {
	patches, err := a.snapshots.LoadAll(ctx, a.Config.SnapshotLoadLimit)
	if err != nil {
		a.logger.Warn("load player snapshots failed", "error", err)
		return
	}
	n := a.Players.Warm(patches)
	a.logger.Info("player cache warmed", "records", n, "snapshots", len(patches))
}
