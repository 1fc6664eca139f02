package httpapi

import (
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/progcompcl/ide/internal/version"
	"pkt.systems/pslog"
)

const requestIDHeader = "X-Request-ID"

// statusWriter records what a handler wrote. Flush passes through so SSE
// streams keep working behind the access log.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

type sessionLookupFunc func(*http.Request) string

// withAccessLog tags every request with an id, binds a request logger to the
// context, and logs one line per request. Server errors log at Error,
// client errors at Warn.
func withAccessLog(next http.Handler, lookup sessionLookupFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		w.Header().Set("Server", version.UserAgent())

		log := pslog.Ctx(r.Context()).With("request_id", reqID, "remote", remoteHost(r))
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(pslog.ContextWithLogger(r.Context(), log)))

		if lookup != nil {
			if id := lookup(r); id != "" {
				log = log.With("session", id)
			}
		}
		status := sw.status
		if status == 0 {
			status = http.StatusOK
		}
		fields := []any{"method", r.Method, "path", r.URL.Path, "status", status, "bytes", sw.bytes, "duration_ms", time.Since(start).Milliseconds()}
		switch {
		case status >= 500:
			log.Error("http request", fields...)
		case status >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
