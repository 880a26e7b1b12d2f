// Package monitoring - request_logger.go logs HTTP request lifecycle.
//
// DESIGN: Structured logging for request tracing at DEBUG level:
//   - LogIncoming:    Request received from client
//   - LogOutgoing:    Request forwarded to the upstream
//   - LogResponse:    Response sent to client
//   - LogFragments:   Per-fragment compression details
package monitoring

import (
	"net/http"
	"time"
)

// RequestLogger logs HTTP request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// RequestInfo contains incoming request information.
type RequestInfo struct {
	RequestID  string
	Method     string
	Path       string
	RemoteAddr string
	BodySize   int
	StartTime  time.Time
}

// NewRequestInfo creates RequestInfo from an HTTP request.
func NewRequestInfo(r *http.Request, requestID string, bodySize int) *RequestInfo {
	return &RequestInfo{
		RequestID:  requestID,
		Method:     r.Method,
		Path:       r.URL.Path,
		RemoteAddr: r.RemoteAddr,
		BodySize:   bodySize,
		StartTime:  time.Now(),
	}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(info *RequestInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("path", info.Path).
		Int("body_size", info.BodySize).
		Msg("incoming")
}

// OutgoingRequestInfo contains outgoing request information.
type OutgoingRequestInfo struct {
	RequestID  string
	TargetURL  string
	Method     string
	BodySize   int
	Compressed bool
}

// LogOutgoing logs an outgoing request.
func (rl *RequestLogger) LogOutgoing(info *OutgoingRequestInfo) {
	event := rl.logger.Debug().
		Str("request_id", info.RequestID).
		Str("method", info.Method).
		Str("target", info.TargetURL).
		Int("body_size", info.BodySize)
	if info.Compressed {
		event = event.Bool("compressed", true)
	}
	event.Msg("outgoing")
}

// ResponseInfo contains response information.
type ResponseInfo struct {
	RequestID  string
	StatusCode int
	Latency    time.Duration
}

// LogResponse logs a response.
func (rl *RequestLogger) LogResponse(info *ResponseInfo) {
	rl.logger.Debug().
		Str("request_id", info.RequestID).
		Int("status", info.StatusCode).
		Dur("latency", info.Latency).
		Msg("response")
}

// FragmentInfo describes one compressed fragment.
type FragmentInfo struct {
	MessageIndex int
	Path         string
	Kind         string
	Rate         float64
	OriginalLen  int
	TokensBefore int
	TokensAfter  int
}

// LogFragments logs each compressed fragment of a request.
func (rl *RequestLogger) LogFragments(requestID string, fragments []FragmentInfo, duration time.Duration) {
	for _, f := range fragments {
		rl.logger.Debug().
			Str("request_id", requestID).
			Int("message", f.MessageIndex).
			Str("path", f.Path).
			Str("type", f.Kind).
			Float64("rate", f.Rate).
			Int("chars", f.OriginalLen).
			Int("tokens_before", f.TokensBefore).
			Int("tokens_after", f.TokensAfter).
			Msg("fragment")
	}
	rl.logger.Debug().
		Str("request_id", requestID).
		Int("fragments", len(fragments)).
		Dur("duration", duration).
		Msg("compression")
}
