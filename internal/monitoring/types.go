// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - PipeType:     Identifies which pipe handled a request
//   - Config types: LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// PIPE TYPES - Used by router and metrics
// =============================================================================

// PipeType identifies which compression pipe handles the request.
type PipeType string

const (
	PipeNone   PipeType = "none"
	PipeLingua PipeType = "lingua"
)

// =============================================================================
// CONFIG TYPES
// =============================================================================

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // auto, json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}
