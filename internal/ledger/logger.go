package ledger

import "github.com/d-singer/batdetect2-CLI/internal/logger"

// GetLogger returns the ledger package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("ledger")
}
