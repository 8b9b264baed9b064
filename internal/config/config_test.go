package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testStakeAddr = "0x1234567890123456789012345678901234567890"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Chain.ChainID != SepoliaChainID {
		t.Errorf("expected Sepolia chain id, got %d", cfg.Chain.ChainID)
	}
	if cfg.Contract.PoolID != 0 {
		t.Errorf("expected pool 0, got %d", cfg.Contract.PoolID)
	}
	if cfg.Tracker.ConfirmTimeout != 3*time.Minute {
		t.Errorf("expected 3m confirm timeout, got %v", cfg.Tracker.ConfirmTimeout)
	}
	if cfg.Display.Precision != 4 {
		t.Errorf("expected display precision 4, got %d", cfg.Display.Precision)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDefaultConfig_NotLive(t *testing.T) {
	if err := DefaultConfig().ValidateLive(); err == nil {
		t.Error("expected ValidateLive to require a contract address")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvStakeAddress, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chain.ChainID != SepoliaChainID {
		t.Errorf("expected defaults, got chain id %d", cfg.Chain.ChainID)
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Setenv(EnvStakeAddress, "")
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Contract.Address = testStakeAddr
	cfg.Tracker.ConfirmTimeout = 90 * time.Second
	cfg.Log.Format = "json"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Contract.Address != testStakeAddr {
		t.Errorf("address mismatch: %s", loaded.Contract.Address)
	}
	if loaded.Tracker.ConfirmTimeout != 90*time.Second {
		t.Errorf("timeout mismatch: %v", loaded.Tracker.ConfirmTimeout)
	}
	if err := loaded.ValidateLive(); err != nil {
		t.Errorf("expected live config to validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvStakeAddress, testStakeAddr)
	t.Setenv(EnvRPCURL, "https://rpc.example.org")
	t.Setenv(EnvChainID, "1")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Contract.Address != testStakeAddr {
		t.Errorf("expected env stake address, got %q", cfg.Contract.Address)
	}
	if cfg.Chain.RPCURL != "https://rpc.example.org" {
		t.Errorf("expected env rpc url, got %q", cfg.Chain.RPCURL)
	}
	if cfg.Chain.ChainID != 1 {
		t.Errorf("expected chain id 1, got %d", cfg.Chain.ChainID)
	}
}

func TestLoad_BadEnvChainID(t *testing.T) {
	t.Setenv(EnvChainID, "sepolia")
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected error for non-numeric chain id")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("chain: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"bad chain id", func(c *Config) { c.Chain.ChainID = 0 }, "chain_id"},
		{"bad scheme", func(c *Config) { c.Chain.RPCURL = "ftp://x" }, "scheme"},
		{"short address", func(c *Config) { c.Contract.Address = "0x1234" }, "42 characters"},
		{"no prefix", func(c *Config) { c.Contract.Address = strings.Repeat("a", 42) }, "start with 0x"},
		{"zero address", func(c *Config) { c.Contract.Address = "0x" + strings.Repeat("0", 40) }, "zero address"},
		{"non-hex", func(c *Config) { c.Contract.Address = "0x" + strings.Repeat("z", 40) }, "invalid hex"},
		{"zero timeout", func(c *Config) { c.Tracker.ConfirmTimeout = 0 }, "confirm_timeout"},
		{"poll above timeout", func(c *Config) { c.Tracker.PollInterval = time.Hour }, "poll_interval"},
		{"precision", func(c *Config) { c.Display.Precision = 19 }, "precision"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("expected error containing %q, got %v", tt.errSub, err)
			}
		})
	}
}

func TestMaxGasPrice(t *testing.T) {
	c := ChainConfig{MaxGasPriceGwei: 2}
	if got := c.MaxGasPrice().String(); got != "2000000000" {
		t.Errorf("expected 2 gwei in wei, got %s", got)
	}
	if (ChainConfig{}).MaxGasPrice() != nil {
		t.Error("expected nil cap when unset")
	}
}

func TestWalletPassword(t *testing.T) {
	t.Setenv(EnvWalletPassword, "")
	cfg := DefaultConfig()

	pw, err := cfg.WalletPassword()
	if err != nil || pw != "" {
		t.Errorf("expected empty password, got %q, %v", pw, err)
	}

	path := filepath.Join(t.TempDir(), "pw")
	if err := os.WriteFile(path, []byte("from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg.Wallet.PasswordFile = path
	if pw, _ := cfg.WalletPassword(); pw != "from-file" {
		t.Errorf("expected password from file, got %q", pw)
	}

	t.Setenv(EnvWalletPassword, "from-env")
	if pw, _ := cfg.WalletPassword(); pw != "from-env" {
		t.Errorf("expected env to win, got %q", pw)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := expandPath("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("expandPath: got %s", got)
	}
	if got := expandPath("/abs"); got != "/abs" {
		t.Errorf("absolute path changed: %s", got)
	}
}
