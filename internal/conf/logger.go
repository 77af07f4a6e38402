// Package conf provides configuration management for batdetect2-cli.
package conf

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
