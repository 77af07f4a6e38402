// Package observability provides Prometheus metrics for analysis runs.
package observability

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the observability package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("metrics")
}
