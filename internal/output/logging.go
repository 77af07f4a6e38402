package output

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the output module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("output")
}
