// Package runtime carries the state shared by commands for one process:
// build metadata, the loaded settings and the process logger.
package runtime

import (
	"io"
	"os"

	"github.com/d-singer/batdetect2-CLI/internal/buildinfo"
	"github.com/d-singer/batdetect2-CLI/internal/conf"
	"github.com/d-singer/batdetect2-CLI/internal/detection"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
)

// DetectorFactory builds the detector for a run.
type DetectorFactory func(settings *conf.Settings) (detection.Detector, error)

// Context contains runtime state that is not user-configurable. It is
// filled in by the root command before any subcommand runs.
type Context struct {
	// Build holds the version metadata injected at link time
	Build *buildinfo.Context

	// Settings are loaded by the root command's pre-run hook
	Settings *conf.Settings

	// Logger is the process logger, also installed as the global logger
	Logger *logger.CentralLogger

	// LogOutput receives console logs; stderr when nil
	LogOutput io.Writer

	// SearchPaths overrides the config search path; nil uses the defaults
	SearchPaths []string

	// NewDetector overrides the BatDetect2 command-line detector
	NewDetector DetectorFactory
}

// New creates a runtime context for build.
func New(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}

// Console returns the writer for console logs.
func (c *Context) Console() io.Writer {
	if c.LogOutput != nil {
		return c.LogOutput
	}
	return os.Stderr
}

// Close flushes and closes the process logger.
func (c *Context) Close() error {
	if c == nil || c.Logger == nil {
		return nil
	}
	return c.Logger.Close()
}
