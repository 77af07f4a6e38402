package telemetry

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the telemetry package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
