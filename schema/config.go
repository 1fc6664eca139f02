package schema

import (
	"errors"
	"strings"
	"time"
)

// FocusPolicy selects how stream focus follows appended output.
type FocusPolicy string

const (
	// FocusProgramWins keeps focus on the program stream once it has output.
	FocusProgramWins FocusPolicy = "program-wins"
	// FocusLastChunk moves focus to whichever stream received the last chunk.
	FocusLastChunk FocusPolicy = "last-chunk"
)

// SessionConfig defines session limits and display policy.
type SessionConfig struct {
	MaxLines     int
	FocusPolicy  FocusPolicy
	ReadyTimeout time.Duration
}

// NormalizeSessionConfig applies defaults and validates the config.
func NormalizeSessionConfig(cfg SessionConfig) (SessionConfig, error) {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultMaxLines
	}
	cfg.FocusPolicy = FocusPolicy(strings.TrimSpace(strings.ToLower(string(cfg.FocusPolicy))))
	switch cfg.FocusPolicy {
	case "":
		cfg.FocusPolicy = FocusProgramWins
	case FocusProgramWins, FocusLastChunk:
	default:
		return SessionConfig{}, errors.New("unsupported focus policy " + string(cfg.FocusPolicy))
	}
	if cfg.ReadyTimeout < 0 {
		return SessionConfig{}, errors.New("ready timeout must not be negative")
	}
	return cfg, nil
}
