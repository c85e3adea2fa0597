package log

import (
	"net/http"
	"sync"
	"time"
)

// HTTP log buffer is separate from the main logger output
var httpLogBuffer *LogBuffer
var httpLogBufferOnce sync.Once

// HTTPLogEntry represents an HTTP request/response log entry
type HTTPLogEntry struct {
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Status     int           `json:"status"`
	Duration   time.Duration `json:"duration"`
	Size       int           `json:"size"`
	RemoteAddr string        `json:"remote_addr"`
	UserAgent  string        `json:"user_agent"`
}

// LogBuffer keeps the most recent HTTP log entries in a fixed-size ring
type LogBuffer struct {
	mu      sync.RWMutex
	entries []HTTPLogEntry
	next    int
	full    bool
}

// NewLogBuffer creates a buffer holding up to size entries
func NewLogBuffer(size int) *LogBuffer {
	if size < 1 {
		size = 1
	}
	return &LogBuffer{entries: make([]HTTPLogEntry, size)}
}

// AddEntry appends an entry, overwriting the oldest when full
func (b *LogBuffer) AddEntry(entry HTTPLogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
}

// Entries returns buffered entries oldest first
func (b *LogBuffer) Entries() []HTTPLogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.full {
		return append([]HTTPLogEntry(nil), b.entries[:b.next]...)
	}
	out := make([]HTTPLogEntry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

// GetHTTPLogBuffer returns the HTTP log buffer instance, creating it if necessary
func GetHTTPLogBuffer() *LogBuffer {
	httpLogBufferOnce.Do(func() {
		httpLogBuffer = NewLogBuffer(1000) // Keep last 1000 HTTP log entries
	})
	return httpLogBuffer
}

// LogHTTPRequest logs an HTTP request and records it in the HTTP log buffer
func LogHTTPRequest(method, path string, status int, duration time.Duration, size int, remoteAddr, userAgent string) {
	entry := HTTPLogEntry{
		Timestamp:  time.Now(),
		Method:     method,
		Path:       path,
		Status:     status,
		Duration:   duration,
		Size:       size,
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
	}
	GetHTTPLogBuffer().AddEntry(entry)

	fields := []interface{}{
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"size", size,
		"remote_addr", remoteAddr,
	}
	switch {
	case status >= 500:
		GetSugaredLogger().Errorw("http request", fields...)
	case status >= 400:
		GetSugaredLogger().Warnw("http request", fields...)
	default:
		GetSugaredLogger().Debugw("http request", fields...)
	}
}

// statusRecorder captures the status code and body size written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// HTTPMiddleware logs every request passing through next
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		LogHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start), rec.size, r.RemoteAddr, r.UserAgent())
	})
}
