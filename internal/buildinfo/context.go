// Package buildinfo holds build-time metadata injected through -ldflags
package buildinfo

import "fmt"

// UnknownValue is reported for metadata missing from the build.
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// version holds the Git version tag from build
	version string

	// buildDate is the time when the binary was built
	buildDate string

	// commit is the source revision
	commit string
}

// NewContext creates build metadata. Empty values report as UnknownValue.
func NewContext(version, buildDate, commit string) *Context {
	return &Context{
		version:   version,
		buildDate: buildDate,
		commit:    commit,
	}
}

// Version returns the build version string
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the build date string
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// Commit returns the source revision
func (c *Context) Commit() string {
	if c == nil || c.commit == "" {
		return UnknownValue
	}
	return c.commit
}

// String renders the metadata for --version output.
func (c *Context) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", c.Version(), c.Commit(), c.BuildDate())
}
