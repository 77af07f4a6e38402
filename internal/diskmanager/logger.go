package diskmanager

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the diskmanager package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("diskmanager")
}
