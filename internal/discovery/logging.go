package discovery

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the discovery module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("discovery")
}
