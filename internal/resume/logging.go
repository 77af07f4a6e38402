package resume

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the resume module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("resume")
}
