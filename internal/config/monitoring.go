// Monitoring configuration - logging, metrics and savings settings.
//
// DESIGN: Separates logging (zerolog) from accounting (Prometheus counters
// and the SQLite savings ledger). Logging is for operators, accounting is
// for measuring what compression saves.
package config

import "fmt"

// Log format values.
const (
	LogFormatAuto    = "auto"    // console on a terminal, JSON otherwise
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	// Logging settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // auto, json, console
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// Accounting
	SavingsDB      string `yaml:"savings_db"`      // SQLite ledger path, empty = in-memory only
	MetricsEnabled bool   `yaml:"metrics_enabled"` // Serve /metrics
}

// DefaultMonitoring returns the monitoring defaults.
func DefaultMonitoring() MonitoringConfig {
	return MonitoringConfig{
		LogLevel:       "info",
		LogFormat:      LogFormatAuto,
		LogOutput:      "stdout",
		MetricsEnabled: true,
	}
}

// Validate checks the monitoring settings.
func (m *MonitoringConfig) Validate() error {
	switch m.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("monitoring.log_level: unknown level %q", m.LogLevel)
	}
	switch m.LogFormat {
	case "", LogFormatAuto, LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("monitoring.log_format: must be 'auto', 'json', or 'console', got %q", m.LogFormat)
	}
	return nil
}
