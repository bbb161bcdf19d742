package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies DIVA_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known DIVA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.DomainName, "DIVA_CHAIN_DOMAIN_NAME")
	setStr(&cfg.Chain.DomainVersion, "DIVA_CHAIN_DOMAIN_VERSION")
	setInt64(&cfg.Chain.ChainID, "DIVA_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.VerifyingContract, "DIVA_CHAIN_VERIFYING_CONTRACT")

	// ── Protocol ──
	setInt64(&cfg.Protocol.ProtocolFee, "DIVA_PROTOCOL_PROTOCOL_FEE")
	setInt64(&cfg.Protocol.SettlementFee, "DIVA_PROTOCOL_SETTLEMENT_FEE")
	setDuration(&cfg.Protocol.SubmissionPeriod, "DIVA_PROTOCOL_SUBMISSION_PERIOD")
	setDuration(&cfg.Protocol.ChallengePeriod, "DIVA_PROTOCOL_CHALLENGE_PERIOD")
	setDuration(&cfg.Protocol.ReviewPeriod, "DIVA_PROTOCOL_REVIEW_PERIOD")
	setDuration(&cfg.Protocol.FallbackSubmissionPeriod, "DIVA_PROTOCOL_FALLBACK_SUBMISSION_PERIOD")
	setStr(&cfg.Protocol.Treasury, "DIVA_PROTOCOL_TREASURY")
	setStr(&cfg.Protocol.FallbackDataProvider, "DIVA_PROTOCOL_FALLBACK_DATA_PROVIDER")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "DIVA_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "DIVA_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "DIVA_WALLET_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "DIVA_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DIVA_POSTGRES_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "DIVA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "DIVA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "DIVA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "DIVA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "DIVA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "DIVA_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "DIVA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "DIVA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "DIVA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "DIVA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "DIVA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "DIVA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "DIVA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "DIVA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "DIVA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "DIVA_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "DIVA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "DIVA_S3_REGION")
	setStr(&cfg.S3.Bucket, "DIVA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "DIVA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "DIVA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "DIVA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "DIVA_S3_FORCE_PATH_STYLE")

	// ── Sweeper ──
	setBool(&cfg.Sweeper.Enabled, "DIVA_SWEEPER_ENABLED")
	setDuration(&cfg.Sweeper.Interval, "DIVA_SWEEPER_INTERVAL")
	setDuration(&cfg.Sweeper.LockTTL, "DIVA_SWEEPER_LOCK_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "DIVA_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "DIVA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "DIVA_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminToken, "DIVA_SERVER_ADMIN_TOKEN")
	setInt(&cfg.Server.RateLimitPerMinute, "DIVA_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Top-level ──
	setStr(&cfg.Mode, "DIVA_MODE")
	setStr(&cfg.LogLevel, "DIVA_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
