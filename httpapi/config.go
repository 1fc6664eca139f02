package httpapi

import "time"

// Config defines HTTP API settings.
type Config struct {
	Addr     string
	BasePath string
	// StreamKeepalive is the SSE comment interval; zero uses the default.
	StreamKeepalive time.Duration
	// MaxBodyBytes caps request bodies; zero uses the default.
	MaxBodyBytes int64
}
