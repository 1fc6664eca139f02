package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"github.com/progcompcl/ide/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
	Session       SessionConfig   `mapstructure:"session" yaml:"session"`
	Worker        WorkerConfig    `mapstructure:"worker" yaml:"worker"`
	Toolchain     ToolchainConfig `mapstructure:"toolchain" yaml:"toolchain"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Worker modes.
const (
	WorkerModeLocal = "local"
	WorkerModeGRPC  = "grpc"
)

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// SessionConfig controls compile sessions and their output buffers.
type SessionConfig struct {
	MaxLines            int    `mapstructure:"max_lines" yaml:"max_lines"`
	FocusPolicy         string `mapstructure:"focus_policy" yaml:"focus_policy"`
	ReadyTimeoutSeconds int    `mapstructure:"ready_timeout_seconds" yaml:"ready_timeout_seconds"`
	MaxSessions         int    `mapstructure:"max_sessions" yaml:"max_sessions"`
	IdleTimeoutMinutes  int    `mapstructure:"idle_timeout_minutes" yaml:"idle_timeout_minutes"`
	ReapIntervalSeconds int    `mapstructure:"reap_interval_seconds" yaml:"reap_interval_seconds"`
}

// WorkerConfig selects where workers run.
type WorkerConfig struct {
	// Mode is "local" (in-process goroutines) or "grpc" (worker daemon).
	Mode string `mapstructure:"mode" yaml:"mode"`
	// Embedded starts the worker daemon inside serve when Mode is grpc.
	Embedded               bool   `mapstructure:"embedded" yaml:"embedded"`
	Network                string `mapstructure:"network" yaml:"network"`
	// Address defaults to worker.sock under StateDir for unix sockets.
	Address                string `mapstructure:"address" yaml:"address,omitempty"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// ToolchainConfig configures the host compiler.
type ToolchainConfig struct {
	CXX               string   `mapstructure:"cxx" yaml:"cxx"`
	// WorkDir defaults to toolchain/ under StateDir.
	WorkDir           string   `mapstructure:"work_dir" yaml:"work_dir,omitempty"`
	Flags             []string `mapstructure:"flags" yaml:"flags"`
	RunTimeoutSeconds int      `mapstructure:"run_timeout_seconds" yaml:"run_timeout_seconds"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".progcomp", "state"),
		HTTP: HTTPConfig{
			Addr:     ":27480",
			BasePath: "",
		},
		Session: SessionConfig{
			MaxLines:            schema.DefaultMaxLines,
			FocusPolicy:         string(schema.FocusProgramWins),
			ReadyTimeoutSeconds: 60,
			MaxSessions:         64,
			IdleTimeoutMinutes:  30,
			ReapIntervalSeconds: 60,
		},
		Worker: WorkerConfig{
			Mode:                   WorkerModeLocal,
			Embedded:               true,
			Network:                "unix",
			ShutdownTimeoutSeconds: 5,
		},
		Toolchain: ToolchainConfig{
			CXX:               "clang++",
			Flags:             []string{"-std=c++17", "-O2", "-fcolor-diagnostics"},
			RunTimeoutSeconds: 10,
		},
	}
	deriveStatePaths(&cfg)
	return cfg, nil
}

// deriveStatePaths fills unset paths that live under StateDir.
func deriveStatePaths(cfg *Config) {
	if cfg.StateDir == "" {
		return
	}
	if cfg.Worker.Address == "" && (cfg.Worker.Network == "" || cfg.Worker.Network == "unix") {
		cfg.Worker.Address = filepath.Join(cfg.StateDir, "worker.sock")
	}
	if cfg.Toolchain.WorkDir == "" {
		cfg.Toolchain.WorkDir = filepath.Join(cfg.StateDir, "toolchain")
	}
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".progcomp", "config.yaml"), nil
}

// SessionDefaults converts the session section into schema form.
func (c Config) SessionDefaults() schema.SessionConfig {
	return schema.SessionConfig{
		MaxLines:     c.Session.MaxLines,
		FocusPolicy:  schema.FocusPolicy(c.Session.FocusPolicy),
		ReadyTimeout: seconds(c.Session.ReadyTimeoutSeconds),
	}
}

// IdleTimeout returns the session idle timeout; zero disables reaping.
func (c Config) IdleTimeout() time.Duration {
	if c.Session.IdleTimeoutMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Session.IdleTimeoutMinutes) * time.Minute
}

// ReapInterval returns how often idle sessions are checked.
func (c Config) ReapInterval() time.Duration {
	if c.Session.ReapIntervalSeconds <= 0 {
		return time.Minute
	}
	return seconds(c.Session.ReapIntervalSeconds)
}

// RunTimeout returns the program run limit.
func (c Config) RunTimeout() time.Duration {
	return seconds(c.Toolchain.RunTimeoutSeconds)
}

// ShutdownTimeout returns the worker daemon graceful stop limit.
func (c Config) ShutdownTimeout() time.Duration {
	return seconds(c.Worker.ShutdownTimeoutSeconds)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
