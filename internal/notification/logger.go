package notification

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the notification package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}
