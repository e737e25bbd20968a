package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/detective/internal/config"
	"github.com/playperu/detective/internal/database"
	"github.com/playperu/detective/internal/engine"
	"github.com/playperu/detective/internal/handler/health"
	"github.com/playperu/detective/internal/migrations"
	"github.com/playperu/detective/internal/server"
	"github.com/playperu/detective/internal/session"
	"github.com/playperu/detective/internal/store/memstore"
	"github.com/playperu/detective/internal/store/sqlstore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// store is what both backends provide.
type store interface {
	engine.Store
	server.Seeder
}

// sessionSweeper is implemented by session stores that keep expired rows.
type sessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	checks := map[string]health.Checker{}

	var (
		st       store
		sessions session.Store
	)
	switch cfg.Store {
	case "sql":
		db, err := database.Open(ctx, cfg.DBDriver, cfg.DBPath)
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", cfg.DBDriver, err)
		}
		defer db.Close()

		if err := migrations.Run(ctx, db); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("connected to database", "driver", cfg.DBDriver, "path", cfg.DBPath)

		sqlStore := sqlstore.New(db)
		st, sessions = sqlStore, sqlStore
		checks["database"] = health.SQL(db)
	default:
		mem := memstore.New()
		st, sessions = mem, session.NewMemoryStore()
		logger.Warn("using in-memory store; state is lost on restart")
	}

	// --- Redis ---
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		logger.Info("connected to redis")

		sessions = session.NewRedisStore(rdb, "")
		checks["redis"] = health.Redis(rdb)
	}

	eng := engine.New(st, logger,
		engine.WithTimeout(cfg.StoreTimeout),
		engine.WithAttemptLimit(cfg.AttemptLimit),
	)

	if cfg.SeedDemo {
		if err := server.SeedDemo(ctx, logger, st, bcrypt.DefaultCost); err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
	}

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Engine:     eng,
		Admin:      st,
		Sessions:   sessions,
		Checks:     checks,
		SessionTTL: cfg.SessionTTL,
		BcryptCost: bcrypt.DefaultCost,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	if cfg.SweepInterval > 0 {
		g.Go(func() error {
			sweep(gctx, logger, eng, sessions, cfg.SweepInterval)
			return nil
		})
	}

	return g.Wait()
}

// sweep finishes expired rooms and drops expired sessions until ctx ends.
// Reads finish rooms lazily anyway, so failures are only logged.
func sweep(ctx context.Context, logger *slog.Logger, eng *engine.Engine, sessions session.Store, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		if n, err := eng.SweepExpiredRooms(ctx); err != nil {
			logger.Error("sweeping expired rooms", "error", err)
		} else if n > 0 {
			logger.Info("finished expired rooms", "count", n)
		}

		if s, ok := sessions.(sessionSweeper); ok {
			if n, err := s.DeleteExpiredSessions(ctx, time.Now()); err != nil {
				logger.Error("sweeping expired sessions", "error", err)
			} else if n > 0 {
				logger.Debug("deleted expired sessions", "count", n)
			}
		}
	}
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
