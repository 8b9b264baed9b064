package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/rccstake/rccstake/internal/config"
	"github.com/rccstake/rccstake/internal/logging"
)

// Global CLI flags
var (
	// ConfigPath is the config file; empty means ~/.rccstake/config.yaml
	ConfigPath string

	// Mock runs against an in-memory staking contract instead of the chain
	Mock bool

	// OutputFormat controls output format: "" (auto), "json", "plain"
	OutputFormat string

	// LogLevel overrides log.level from the config file
	LogLevel string
)

// Version information (set at build time)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns the version string
func GetVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

// GetCommit returns the git commit
func GetCommit() string {
	if Commit != "unknown" {
		return Commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				if len(setting.Value) > 8 {
					return setting.Value[:8]
				}
				return setting.Value
			}
		}
	}
	return "unknown"
}

// GetGoVersion returns the Go version
func GetGoVersion() string {
	return runtime.Version()
}

func configPath() string {
	if ConfigPath != "" {
		return ConfigPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file and sets up logging on stderr.
func loadConfig(stderr io.Writer) (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if LogLevel != "" {
		level = LogLevel
	}
	if err := logging.Configure(stderr, level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("failed to configure logging: %w", err)
	}
	return cfg, nil
}

func jsonOutput() bool {
	return OutputFormat == "json"
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
