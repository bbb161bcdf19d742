package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/divaprotocol/diva-engine/internal/blob/s3"
	"github.com/divaprotocol/diva-engine/internal/cache/redis"
	"github.com/divaprotocol/diva-engine/internal/config"
	"github.com/divaprotocol/diva-engine/internal/crypto"
	"github.com/divaprotocol/diva-engine/internal/domain"
	"github.com/divaprotocol/diva-engine/internal/engine"
	"github.com/divaprotocol/diva-engine/internal/governance"
	"github.com/divaprotocol/diva-engine/internal/journal"
	"github.com/divaprotocol/diva-engine/internal/state"
	"github.com/divaprotocol/diva-engine/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Core protocol.
	Engine     *engine.Engine
	Governance *governance.Registry
	Recorder   *journal.Recorder

	// Stores
	PoolStore  domain.PoolStore
	FillStore  domain.FillStore
	ClaimStore domain.ClaimStore
	EventStore domain.EventStore

	// Redis-backed infrastructure
	OfferStateCache domain.OfferStateCache
	RateLimiter     domain.RateLimiter
	LockManager     domain.LockManager
	EventBus        domain.EventBus

	// Optional S3 event archive; nil when s3.enabled is false. ArchiveReader
	// backs the admin archive endpoints over the same bucket.
	Archiver      domain.EventArchiver
	ArchiveReader domain.BlobReader

	// Clients kept for health probing.
	PgClient    *postgres.Client
	RedisClient *redis.Client
	S3Client    *s3blob.Client
}

// engineSource defers journal snapshot reads to the engine. The engine is
// constructed after the recorder (its sink feeds the journal queue), so the
// indirection breaks the construction cycle; eng is set before any event
// flows.
type engineSource struct {
	eng *engine.Engine
}

func (s *engineSource) GetPool(id common.Hash) (domain.Pool, error) {
	return s.eng.GetPool(id)
}

func (s *engineSource) GetFillRecord(typedOfferHash common.Hash) domain.FillRecord {
	return s.eng.GetFillRecord(typedOfferHash)
}

func (s *engineSource) GetClaim(token common.Address, recipient common.Address) *big.Int {
	return s.eng.GetClaim(token, recipient)
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	deps.PgClient = pgClient

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PoolStore = postgres.NewPoolStore(pool)
	deps.FillStore = postgres.NewFillStore(pool)
	deps.ClaimStore = postgres.NewClaimStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.RedisClient = redisClient

	deps.OfferStateCache = redis.NewOfferStateCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)

	// --- S3 event archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.S3Client = s3Client
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
		deps.ArchiveReader = s3blob.NewReader(s3Client)
	}

	// --- Governance registry, seeded from config ---
	deps.Governance = governance.New(governance.Config{
		ProtocolFee:              cfg.Protocol.ProtocolFee,
		SettlementFee:            cfg.Protocol.SettlementFee,
		SubmissionPeriod:         int64(cfg.Protocol.SubmissionPeriod.Duration.Seconds()),
		ChallengePeriod:          int64(cfg.Protocol.ChallengePeriod.Duration.Seconds()),
		ReviewPeriod:             int64(cfg.Protocol.ReviewPeriod.Duration.Seconds()),
		FallbackSubmissionPeriod: int64(cfg.Protocol.FallbackSubmissionPeriod.Duration.Seconds()),
		Treasury:                 common.HexToAddress(cfg.Protocol.Treasury),
		FallbackDataProvider:     common.HexToAddress(cfg.Protocol.FallbackDataProvider),
	})

	// --- State context, rehydrated from the stores ---
	st := state.New()
	if err := rehydrate(ctx, st, deps.PoolStore, deps.FillStore, deps.ClaimStore); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: rehydrate state: %w", err)
	}

	// --- Journal recorder and engine ---
	src := &engineSource{}
	deps.Recorder = journal.New(src, deps.EventStore, deps.PoolStore, deps.FillStore, deps.ClaimStore, journal.Options{
		Bus:      deps.EventBus,
		Archiver: deps.Archiver,
		Logger:   logger,
	})

	eip712 := crypto.NewDomain(
		cfg.Chain.DomainName,
		cfg.Chain.DomainVersion,
		cfg.Chain.ChainID,
		common.HexToAddress(cfg.Chain.VerifyingContract),
	)
	deps.Engine = engine.New(st, state.NewLedger(st), deps.Governance, eip712, engine.Options{
		Sink:   deps.Recorder.Sink(),
		Logger: logger,
	})
	src.eng = deps.Engine

	return deps, cleanup, nil
}

// rehydrate loads the persisted protocol state into the in-memory state
// context. The stores are write-through at runtime, so what they hold is the
// last committed state.
func rehydrate(ctx context.Context, st *state.State, pools domain.PoolStore, fills domain.FillStore, claims domain.ClaimStore) error {
	ps, err := pools.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load pools: %w", err)
	}
	for i := range ps {
		p := ps[i]
		st.PutPool(&p)
	}

	frs, err := fills.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load fill records: %w", err)
	}
	for hash, rec := range frs {
		st.SetFillRecord(hash, rec)
	}

	cls, err := claims.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load fee claims: %w", err)
	}
	for _, c := range cls {
		if c.Amount == nil || c.Amount.Sign() == 0 {
			continue
		}
		st.AddClaim(c.CollateralToken, c.Recipient, c.Amount)
	}

	slog.Default().Info("state rehydrated",
		slog.Int("pools", len(ps)),
		slog.Int("fill_records", len(frs)),
		slog.Int("fee_claims", len(cls)),
	)
	return nil
}
