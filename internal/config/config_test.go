package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/divaprotocol/diva-engine/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsSurviveEmptyFile(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "full" {
		t.Errorf("mode = %q, want full", cfg.Mode)
	}
	if cfg.Chain.DomainName != "DIVA Protocol" {
		t.Errorf("domain name = %q", cfg.Chain.DomainName)
	}
	if cfg.Protocol.SubmissionPeriod.Duration != 7*24*time.Hour {
		t.Errorf("submission period = %v", cfg.Protocol.SubmissionPeriod.Duration)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("server port = %d", cfg.Server.Port)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, `
mode = "server"

[chain]
chain_id = 137

[protocol]
challenge_period = "12h"

[server]
port = 9999
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "server" {
		t.Errorf("mode = %q, want server", cfg.Mode)
	}
	if cfg.Chain.ChainID != 137 {
		t.Errorf("chain id = %d, want 137", cfg.Chain.ChainID)
	}
	if cfg.Protocol.ChallengePeriod.Duration != 12*time.Hour {
		t.Errorf("challenge period = %v, want 12h", cfg.Protocol.ChallengePeriod.Duration)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("server port = %d, want 9999", cfg.Server.Port)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("DIVA_MODE", "sweeper")
	t.Setenv("DIVA_POSTGRES_PASSWORD", "env-secret")
	t.Setenv("DIVA_SWEEPER_INTERVAL", "15s")

	cfg, err := config.Load(writeConfig(t, `
mode = "server"

[postgres]
password = "file-secret"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Mode != "sweeper" {
		t.Errorf("mode = %q, want env override sweeper", cfg.Mode)
	}
	if cfg.Postgres.Password != "env-secret" {
		t.Errorf("postgres password = %q, want env override", cfg.Postgres.Password)
	}
	if cfg.Sweeper.Interval.Duration != 15*time.Second {
		t.Errorf("sweeper interval = %v, want 15s", cfg.Sweeper.Interval.Duration)
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	cfg := config.Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "bogus"
	cfg.Chain.ChainID = 0
	cfg.Chain.VerifyingContract = "nope"
	cfg.Protocol.ChallengePeriod.Duration = 0
	cfg.Server.Port = 99999

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"mode", "chain_id", "verifying_contract", "challenge_period", "port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%s", want, err)
		}
	}
}

func TestValidate_FeeSumCap(t *testing.T) {
	cfg := config.Defaults()
	cfg.Protocol.ProtocolFee = 6e17
	cfg.Protocol.SettlementFee = 5e17

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "must not exceed 1e18") {
		t.Fatalf("expected combined fee cap error, got %v", err)
	}
}

func TestValidate_EncryptedKeyNeedsPassword(t *testing.T) {
	cfg := config.Defaults()
	cfg.Wallet.EncryptedKeyPath = "/keys/maker.json"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "key_password") {
		t.Fatalf("expected wallet password error, got %v", err)
	}
}

func TestRedactedConfig_HidesSecrets(t *testing.T) {
	cfg := config.Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Postgres.Password = "pg-pass"
	cfg.Redis.Password = "redis-pass"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.AdminToken = "admin-token"

	red := config.RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"wallet.private_key": red.Wallet.PrivateKey,
		"postgres.password":  red.Postgres.Password,
		"redis.password":     red.Redis.Password,
		"s3.secret_key":      red.S3.SecretKey,
		"server.admin_token": red.Server.AdminToken,
	} {
		if got != "***" {
			t.Errorf("%s = %q, want redacted", name, got)
		}
	}
	if cfg.Postgres.Password != "pg-pass" {
		t.Error("redaction mutated the original config")
	}
}
