package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file. A .env file next to
// the working directory is loaded first and never overrides variables already
// set in the process environment.
const (
	EnvStakeAddress   = "RCCSTAKE_STAKE_ADDRESS"
	EnvRPCURL         = "RCCSTAKE_RPC_URL"
	EnvChainID        = "RCCSTAKE_CHAIN_ID"
	EnvKeystoreDir    = "RCCSTAKE_KEYSTORE_DIR"
	EnvWalletPassword = "RCCSTAKE_WALLET_PASSWORD"
	EnvLogLevel       = "RCCSTAKE_LOG_LEVEL"
)

// SepoliaChainID is the network the staking contract is deployed on.
const SepoliaChainID int64 = 11155111

// Config is the complete client configuration
type Config struct {
	Chain    ChainConfig    `yaml:"chain"`
	Contract ContractConfig `yaml:"contract"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Display  DisplayConfig  `yaml:"display"`
	API      APIConfig      `yaml:"api"`
	Journal  JournalConfig  `yaml:"journal"`
	Log      LogConfig      `yaml:"log"`
}

// ChainConfig contains RPC connection settings
type ChainConfig struct {
	RPCURL          string  `yaml:"rpc_url"`
	ChainID         int64   `yaml:"chain_id"`
	MaxGasPriceGwei int64   `yaml:"max_gas_price_gwei"` // 0 = no cap
	RPCRateLimit    float64 `yaml:"rpc_rate_limit"`     // read calls per second, 0 = unlimited
	RPCBurst        int     `yaml:"rpc_burst"`
	DialRetries     int     `yaml:"dial_retries"`
}

// MaxGasPrice returns the configured cap in wei, or nil for no cap.
func (c ChainConfig) MaxGasPrice() *big.Int {
	if c.MaxGasPriceGwei <= 0 {
		return nil
	}
	return new(big.Int).Mul(big.NewInt(c.MaxGasPriceGwei), big.NewInt(1e9))
}

// ContractConfig identifies the staking contract
type ContractConfig struct {
	Address string `yaml:"address"`
	PoolID  uint64 `yaml:"pool_id"`
}

// WalletConfig locates the signing key
type WalletConfig struct {
	KeystoreDir  string `yaml:"keystore_dir"`
	PasswordFile string `yaml:"password_file"` // optional, takes precedence over keyring
}

// TrackerConfig bounds confirmation waiting
type TrackerConfig struct {
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

// DisplayConfig controls decimal output
type DisplayConfig struct {
	Precision int32 `yaml:"precision"`
}

// APIConfig configures the presentation feed server
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	RateLimit      int           `yaml:"rate_limit"` // requests per minute per IP
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"` // empty = same origin only
}

// JournalConfig locates the local transaction journal
type JournalConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// DefaultConfig returns a configuration pointed at Sepolia
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".rccstake")

	return &Config{
		Chain: ChainConfig{
			RPCURL:          "https://ethereum-sepolia-rpc.publicnode.com",
			ChainID:         SepoliaChainID,
			MaxGasPriceGwei: 200,
			RPCRateLimit:    10,
			RPCBurst:        5,
			DialRetries:     3,
		},
		Contract: ContractConfig{
			PoolID: 0,
		},
		Wallet: WalletConfig{
			KeystoreDir: filepath.Join(base, "keystore"),
		},
		Tracker: TrackerConfig{
			ConfirmTimeout: 3 * time.Minute,
			PollInterval:   2 * time.Second,
		},
		Display: DisplayConfig{
			Precision: 4,
		},
		API: APIConfig{
			ListenAddr:     "127.0.0.1:8645",
			RateLimit:      120,
			RateLimitBurst: 20,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
		},
		Journal: JournalConfig{
			Path:    filepath.Join(base, "journal"),
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path (a missing file yields defaults), applies
// .env and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	path = expandPath(path)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// .env is optional; a missing file is not an error
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvStakeAddress); v != "" {
		c.Contract.Address = v
	}
	if v := os.Getenv(EnvRPCURL); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv(EnvChainID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvChainID, err)
		}
		c.Chain.ChainID = id
	}
	if v := os.Getenv(EnvKeystoreDir); v != "" {
		c.Wallet.KeystoreDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks the configuration. The contract address is only required
// for live mode; see ValidateLive.
func (c *Config) Validate() error {
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("invalid chain_id: %d", c.Chain.ChainID)
	}
	if c.Chain.RPCURL != "" {
		u, err := url.Parse(c.Chain.RPCURL)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("invalid rpc_url %q", c.Chain.RPCURL)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("unsupported rpc_url scheme %q", u.Scheme)
		}
	}
	if c.Chain.RPCRateLimit < 0 {
		return fmt.Errorf("rpc_rate_limit must not be negative")
	}
	if c.Contract.Address != "" {
		if err := validateEthAddress("contract.address", c.Contract.Address); err != nil {
			return err
		}
	}
	if c.Tracker.ConfirmTimeout <= 0 {
		return fmt.Errorf("tracker.confirm_timeout must be positive")
	}
	if c.Tracker.PollInterval <= 0 || c.Tracker.PollInterval > c.Tracker.ConfirmTimeout {
		return fmt.Errorf("tracker.poll_interval must be positive and below confirm_timeout")
	}
	if c.Display.Precision < 0 || c.Display.Precision > 18 {
		return fmt.Errorf("display.precision must be between 0 and 18, got %d", c.Display.Precision)
	}
	if c.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid log.format: %s", c.Log.Format)
	}
	return nil
}

// ValidateLive additionally requires what a chain connection needs.
func (c *Config) ValidateLive() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Contract.Address == "" {
		return fmt.Errorf("contract.address is required (or set %s)", EnvStakeAddress)
	}
	return nil
}

// validateEthAddress checks that an Ethereum address is 0x-prefixed, 40 hex chars, and non-zero.
func validateEthAddress(name, addr string) error {
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return fmt.Errorf("%s must start with 0x, got %q", name, addr)
	}
	hexPart := addr[2:]
	if len(hexPart) != 40 {
		return fmt.Errorf("%s must be 42 characters (0x + 40 hex), got %d", name, len(addr))
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return fmt.Errorf("%s contains invalid hex characters: %w", name, err)
	}
	if strings.Trim(hexPart, "0") == "" {
		return fmt.Errorf("%s must not be the zero address", name)
	}
	return nil
}

func (c *Config) expandPaths() {
	c.Wallet.KeystoreDir = expandPath(c.Wallet.KeystoreDir)
	c.Wallet.PasswordFile = expandPath(c.Wallet.PasswordFile)
	c.Journal.Path = expandPath(c.Journal.Path)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file path
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".rccstake", "config.yaml")
}

// WalletPassword resolves the keystore password from, in order, the
// environment and the configured password file. It returns "" when neither
// is set; callers then fall back to the keyring or a prompt.
func (c *Config) WalletPassword() (string, error) {
	if v := os.Getenv(EnvWalletPassword); v != "" {
		return v, nil
	}
	if c.Wallet.PasswordFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Wallet.PasswordFile)
	if err != nil {
		return "", fmt.Errorf("failed to read password file: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
