// Package config defines the top-level configuration for the diva engine
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by DIVA_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Protocol ProtocolConfig `toml:"protocol"`
	Wallet   WalletConfig   `toml:"wallet"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Sweeper  SweeperConfig  `toml:"sweeper"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig pins the EIP-712 signing domain. Offers signed under a
// different tuple never verify against this deployment.
type ChainConfig struct {
	DomainName        string `toml:"domain_name"`
	DomainVersion     string `toml:"domain_version"`
	ChainID           int64  `toml:"chain_id"`
	VerifyingContract string `toml:"verifying_contract"`
}

// ProtocolConfig seeds the genesis governance registry entries. Fee rates are
// 1e18-scale fractions; periods are durations parsed from TOML strings.
type ProtocolConfig struct {
	ProtocolFee   int64 `toml:"protocol_fee"`
	SettlementFee int64 `toml:"settlement_fee"`

	SubmissionPeriod         duration `toml:"submission_period"`
	ChallengePeriod          duration `toml:"challenge_period"`
	ReviewPeriod             duration `toml:"review_period"`
	FallbackSubmissionPeriod duration `toml:"fallback_submission_period"`

	Treasury             string `toml:"treasury"`
	FallbackDataProvider string `toml:"fallback_data_provider"`
}

// WalletConfig holds the signing key used by the offersign CLI and by
// operator tooling. The daemon itself never signs offers.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the event
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SweeperConfig controls the background settlement sweeper that finalizes
// pools whose challenge or review windows have lapsed.
type SweeperConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	// LockTTL bounds how long the cross-instance sweep lock is held.
	LockTTL duration `toml:"lock_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// AdminToken guards governance endpoints; empty disables them.
	AdminToken string `toml:"admin_token"`
	// RateLimitPerMinute caps mutating requests per client IP; 0 disables.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "72h").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			DomainName:        "DIVA Protocol",
			DomainVersion:     "1",
			ChainID:           1,
			VerifyingContract: "0x0000000000000000000000000000000000000d1a",
		},
		Protocol: ProtocolConfig{
			ProtocolFee:              2_500_000_000_000_000, // 0.25%
			SettlementFee:            500_000_000_000_000,   // 0.05%
			SubmissionPeriod:         duration{7 * 24 * time.Hour},
			ChallengePeriod:          duration{3 * 24 * time.Hour},
			ReviewPeriod:             duration{5 * 24 * time.Hour},
			FallbackSubmissionPeriod: duration{10 * 24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "diva",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "diva-events",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: duration{time.Minute},
			LockTTL:  duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled:            true,
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimitPerMinute: 600,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"sweeper": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, sweeper, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.DomainName == "" {
		errs = append(errs, "chain: domain_name must not be empty")
	}
	if c.Chain.DomainVersion == "" {
		errs = append(errs, "chain: domain_version must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
	}
	if !isHexAddress(c.Chain.VerifyingContract) {
		errs = append(errs, "chain: verifying_contract must be a 0x-prefixed 20-byte hex address")
	}

	// Protocol
	if c.Protocol.ProtocolFee < 0 {
		errs = append(errs, "protocol: protocol_fee must be >= 0")
	}
	if c.Protocol.SettlementFee < 0 {
		errs = append(errs, "protocol: settlement_fee must be >= 0")
	}
	// Combined fees above 100% would make confirmation insolvent.
	if c.Protocol.ProtocolFee+c.Protocol.SettlementFee > 1e18 {
		errs = append(errs, "protocol: protocol_fee + settlement_fee must not exceed 1e18")
	}
	if c.Protocol.SubmissionPeriod.Duration <= 0 {
		errs = append(errs, "protocol: submission_period must be > 0")
	}
	if c.Protocol.ChallengePeriod.Duration <= 0 {
		errs = append(errs, "protocol: challenge_period must be > 0")
	}
	if c.Protocol.ReviewPeriod.Duration <= 0 {
		errs = append(errs, "protocol: review_period must be > 0")
	}
	if c.Protocol.FallbackSubmissionPeriod.Duration <= 0 {
		errs = append(errs, "protocol: fallback_submission_period must be > 0")
	}
	if c.Protocol.Treasury != "" && !isHexAddress(c.Protocol.Treasury) {
		errs = append(errs, "protocol: treasury must be a 0x-prefixed 20-byte hex address")
	}
	if c.Protocol.FallbackDataProvider != "" && !isHexAddress(c.Protocol.FallbackDataProvider) {
		errs = append(errs, "protocol: fallback_data_provider must be a 0x-prefixed 20-byte hex address")
	}

	// Wallet checks only apply when an encrypted key file is referenced.
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Sweeper
	if c.Sweeper.Enabled {
		if c.Sweeper.Interval.Duration <= 0 {
			errs = append(errs, "sweeper: interval must be > 0 when enabled")
		}
		if c.Sweeper.LockTTL.Duration <= 0 {
			errs = append(errs, "sweeper: lock_ttl must be > 0 when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMinute < 0 {
			errs = append(errs, "server: rate_limit_per_minute must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isHexAddress reports whether s looks like 0x + 40 hex chars.
func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	for _, r := range s[2:] {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
