package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 64

// probePaths are polled by orchestrators and logged at debug level.
var probePaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

type requestLine struct {
	method     string
	path       string
	query      string
	remoteAddr string
	status     int
	bytes      int
	took       time.Duration
}

// recorder captures the status and body size of a response.
type recorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rec *recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
		rec.ResponseWriter.WriteHeader(code)
	}
}

func (rec *recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// validRequestID accepts upstream IDs made of URL-safe characters only, so a
// client cannot inject arbitrary text into log records.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// RequestIDMiddleware tags each request with an ID, reusing a well-formed
// upstream X-Request-ID and minting a UUID otherwise.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}

// LoggingMiddleware writes one http_request record per request. Server
// errors log at warn and probe paths at debug.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		httpRequest(r.Context(), requestLevel(r.URL.Path, rec.status), requestLine{
			method:     r.Method,
			path:       r.URL.Path,
			query:      r.URL.RawQuery,
			remoteAddr: r.RemoteAddr,
			status:     rec.status,
			bytes:      rec.bytes,
			took:       time.Since(start),
		})
	})
}

func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelWarn
	case probePaths[path]:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// CombinedMiddleware applies RequestIDMiddleware then LoggingMiddleware.
func CombinedMiddleware(next http.Handler) http.Handler {
	return RequestIDMiddleware(LoggingMiddleware(next))
}
