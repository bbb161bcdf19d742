package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/server"
	"github.com/divaprotocol/diva-engine/internal/server/handler"
	"github.com/divaprotocol/diva-engine/internal/server/ws"
)

// sweeperLockKey is the distributed lock key coordinating sweepers across
// instances so only one finalizes at a time.
const sweeperLockKey = "settlement-sweeper"

// ServerMode runs the journal recorder and the HTTP + WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startRecorder(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// SweeperMode runs the journal recorder and the settlement sweeper without
// the HTTP surface. Useful for dedicated finalizer instances.
func (a *App) SweeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweeper mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startRecorder(ctx, g, deps)
	g.Go(func() error {
		return a.runSweeper(ctx, deps)
	})

	return g.Wait()
}

// FullMode runs all subsystems: the journal recorder, the settlement sweeper,
// and the HTTP + WebSocket API, each gated by its config section.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startRecorder(ctx, g, deps)

	if a.cfg.Sweeper.Enabled {
		g.Go(func() error {
			return a.runSweeper(ctx, deps)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// startRecorder adds the journal recorder goroutine to the errgroup. The
// recorder drains its queue and flushes the archive on context cancellation.
func (a *App) startRecorder(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		if err := deps.Recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	components := map[string]handler.Pinger{
		"postgres": deps.PgClient,
		"redis":    deps.RedisClient,
	}
	if deps.S3Client != nil {
		components["s3"] = pingFunc(deps.S3Client.Health)
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(components, a.logger),
		Offers:     handler.NewOfferHandler(deps.Engine, deps.OfferStateCache, a.logger),
		Pools:      handler.NewPoolHandler(deps.Engine, deps.PoolStore, a.logger),
		Positions:  handler.NewPositionHandler(deps.Engine, a.logger),
		Events:     handler.NewEventHandler(deps.EventStore, a.logger),
		Governance: handler.NewGovernanceHandler(deps.Governance, a.logger),
	}
	if deps.ArchiveReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.ArchiveReader, a.logger)
	}

	hub := ws.NewHub(deps.EventBus, a.logger)
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		AdminToken:         a.cfg.Server.AdminToken,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runSweeper periodically finalizes pools whose challenge or review windows
// have lapsed. A distributed lock ensures only one instance sweeps per tick.
func (a *App) runSweeper(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Sweeper.Interval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	lockTTL := a.cfg.Sweeper.LockTTL.Duration
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}

	a.logger.InfoContext(ctx, "settlement sweeper started",
		slog.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.sweepOnce(ctx, deps, lockTTL)
		}
	}
}

// sweepOnce finalizes every eligible pool under the cross-instance lock.
func (a *App) sweepOnce(ctx context.Context, deps *Dependencies, lockTTL time.Duration) {
	unlock, err := deps.LockManager.Acquire(ctx, sweeperLockKey, lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.DebugContext(ctx, "sweeper: another instance holds the lock")
		} else {
			a.logger.WarnContext(ctx, "sweeper: lock acquisition failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	defer unlock()

	finalized := 0
	for _, id := range deps.Engine.ListUnconfirmedExpired() {
		if err := deps.Engine.Finalize(id); err != nil {
			// Expired pools still inside an open settlement window are
			// expected here; anything else deserves a look.
			if !sweepSkippable(err) {
				a.logger.WarnContext(ctx, "sweeper: finalize failed",
					slog.String("pool_id", id.Hex()),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		finalized++
	}

	if finalized > 0 {
		a.logger.InfoContext(ctx, "sweeper: finalized pools",
			slog.Int("count", finalized),
		)
	}
}

// sweepSkippable reports whether a finalize error is a normal timing
// condition rather than a fault.
func sweepSkippable(err error) bool {
	return errors.Is(err, domain.ErrChallengePeriodNotExpired) ||
		errors.Is(err, domain.ErrReviewPeriodNotExpired) ||
		errors.Is(err, domain.ErrFinalReferenceValueNotSet)
}

// pingFunc adapts a plain health function to the handler.Pinger interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }
