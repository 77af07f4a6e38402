package myaudio

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the audio module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio")
}
