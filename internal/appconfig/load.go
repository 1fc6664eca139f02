package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/progcompcl/ide/schema"
)

// EnvPrefix prefixes environment overrides of config keys.
const EnvPrefix = "IDE"

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	// IDE_HTTP_ADDR overrides http.addr, and so on.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.base_path", cfg.HTTP.BasePath)
	v.SetDefault("session.max_lines", cfg.Session.MaxLines)
	v.SetDefault("session.focus_policy", cfg.Session.FocusPolicy)
	v.SetDefault("session.ready_timeout_seconds", cfg.Session.ReadyTimeoutSeconds)
	v.SetDefault("session.max_sessions", cfg.Session.MaxSessions)
	v.SetDefault("session.idle_timeout_minutes", cfg.Session.IdleTimeoutMinutes)
	v.SetDefault("session.reap_interval_seconds", cfg.Session.ReapIntervalSeconds)
	v.SetDefault("worker.mode", cfg.Worker.Mode)
	v.SetDefault("worker.embedded", cfg.Worker.Embedded)
	v.SetDefault("worker.network", cfg.Worker.Network)
	// Empty defaults keep the env overrides visible; deriveStatePaths fills them.
	v.SetDefault("worker.address", "")
	v.SetDefault("worker.shutdown_timeout_seconds", cfg.Worker.ShutdownTimeoutSeconds)
	v.SetDefault("toolchain.cxx", cfg.Toolchain.CXX)
	v.SetDefault("toolchain.work_dir", "")
	v.SetDefault("toolchain.flags", cfg.Toolchain.Flags)
	v.SetDefault("toolchain.run_timeout_seconds", cfg.Toolchain.RunTimeoutSeconds)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		// An explicit path that does not exist surfaces as a PathError.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	deriveStatePaths(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr is required")
	}
	basePath := strings.TrimSpace(cfg.HTTP.BasePath)
	if basePath != "" {
		if strings.Contains(basePath, "://") {
			return fmt.Errorf("http.base_path must be a path prefix, not a URL")
		}
		if strings.ContainsAny(basePath, "?#") {
			return fmt.Errorf("http.base_path must not include query or fragment")
		}
	}
	if _, err := schema.NormalizeSessionConfig(cfg.SessionDefaults()); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if cfg.Session.MaxSessions < 0 {
		return fmt.Errorf("session.max_sessions must not be negative")
	}
	switch cfg.Worker.Mode {
	case WorkerModeLocal:
	case WorkerModeGRPC:
		switch cfg.Worker.Network {
		case "", "unix", "tcp":
		default:
			return fmt.Errorf("unsupported worker.network %q", cfg.Worker.Network)
		}
		if strings.TrimSpace(cfg.Worker.Address) == "" {
			return fmt.Errorf("worker.address is required for worker.mode %q", WorkerModeGRPC)
		}
	default:
		return fmt.Errorf("unsupported worker.mode %q", cfg.Worker.Mode)
	}
	if strings.TrimSpace(cfg.Toolchain.CXX) == "" {
		return fmt.Errorf("toolchain.cxx is required")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Worker.Address = expandEnv(cfg.Worker.Address)
	cfg.Toolchain.CXX = expandEnv(cfg.Toolchain.CXX)
	cfg.Toolchain.WorkDir = expandEnv(cfg.Toolchain.WorkDir)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}
	// Left unset so they follow state_dir when it is edited.
	cfg.Worker.Address = ""
	cfg.Toolchain.WorkDir = ""

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
