package detection

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the detection module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("detection")
}
