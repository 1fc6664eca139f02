package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/progcompcl/ide/core"
	"github.com/progcompcl/ide/internal/eventbus"
	"github.com/progcompcl/ide/internal/version"
	"github.com/progcompcl/ide/schema"
)

const (
	defaultStreamKeepalive = 15 * time.Second
	defaultMaxBodyBytes    = 1 << 20
	shutdownTimeout        = 5 * time.Second
)

// Server serves the compile session API.
type Server struct {
	cfg      Config
	registry *core.Registry
	bus      *eventbus.Bus
	basePath string
}

// NewServer constructs an HTTP server. The bus must be the registry's event
// sink for streams to carry events.
func NewServer(cfg Config, registry *core.Registry, bus *eventbus.Bus) *Server {
	if cfg.StreamKeepalive <= 0 {
		cfg.StreamKeepalive = defaultStreamKeepalive
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{
		cfg:      cfg,
		registry: registry,
		bus:      bus,
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/sessions", s.handleOpen)
	mux.HandleFunc("GET /api/sessions", s.handleList)
	mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleSnapshot))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleClose)
	mux.HandleFunc("POST /api/sessions/{id}/compile", s.withSession(s.handleCompile))
	mux.HandleFunc("POST /api/sessions/{id}/assembly", s.withSession(s.handleAssembly))
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.withSession(s.handleReset))
	mux.HandleFunc("GET /api/sessions/{id}/stream", s.withSession(s.handleStream))

	return mountAt(s.basePath, withAccessLog(mux, sessionFromPath))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"build":    version.Read(),
		"sessions": len(s.registry.List()),
	})
}

// statusFor maps session errors onto HTTP status codes.
func statusFor(err error) int {
	var fault *core.FaultError
	switch {
	case errors.Is(err, schema.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrBusy), errors.Is(err, schema.ErrDiscarded):
		return http.StatusConflict
	case errors.Is(err, schema.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, schema.ErrFaulted), errors.Is(err, schema.ErrTerminated):
		return http.StatusGone
	case errors.Is(err, core.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.As(err, &fault):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: %s", schema.ErrInvalidRequest, err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
