// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:        Warn when request exceeds threshold
//   - FlagCompressionFailure: Error when the lingua pipe fails
//   - FlagProviderError:      Warn on upstream 4xx/5xx responses
//   - FlagUpstreamFailure:    Error when the upstream cannot be reached
//   - FlagPanic:              Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 5 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when request latency exceeds threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, path string) bool {
	if latency < am.highLatencyThreshold {
		return false
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("path", path).
		Msg("high_latency")
	return true
}

// FlagCompressionFailure logs compression pipe failure.
func (am *AlertManager) FlagCompressionFailure(requestID, pipe, strategy string, err error) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("pipe", pipe).
		Str("strategy", strategy).
		Err(err).
		Msg("compression_failed")
}

// FlagProviderError logs upstream provider error.
func (am *AlertManager) FlagProviderError(requestID string, statusCode int, body string) {
	am.logger.Warn().
		Str("request_id", requestID).
		Int("status", statusCode).
		Str("response", body).
		Msg("provider_error")
}

// FlagUpstreamFailure logs a transport failure talking to the upstream.
func (am *AlertManager) FlagUpstreamFailure(requestID, targetURL string, err error) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("target", targetURL).
		Err(err).
		Msg("upstream_failed")
}

// FlagInvalidRequest logs invalid request.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
