package analysis

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the analysis package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
