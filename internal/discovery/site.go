// Package discovery finds monitoring sites under an audio root and lists
// their audio files.
package discovery

import (
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
)

// DefaultExtensions lists the audio extensions matched when none are configured.
var DefaultExtensions = []string{".wav"}

// FileState tracks an audio file through one run.
type FileState int

const (
	Discovered FileState = iota
	Unprocessed
	AlreadyDone
	Succeeded
	Failed
)

func (s FileState) String() string {
	switch s {
	case Discovered:
		return "discovered"
	case Unprocessed:
		return "unprocessed"
	case AlreadyDone:
		return "already-done"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// AudioFile is one recording belonging to a site.
type AudioFile struct {
	// Path is the cleaned filesystem path used to open the file.
	Path string
	// Key identifies the file within its site: site-relative, slash-separated, NFC.
	Key string
	// Size in bytes at discovery time.
	Size int64
}

// BaseName returns the final element of the file key.
func (f AudioFile) BaseName() string {
	return path.Base(f.Key)
}

// Site is a monitoring location, one immediate subdirectory of the audio root.
type Site struct {
	ID    string
	Path  string
	Files []AudioFile
	Empty bool
}

// SiteID derives the site identifier from a folder path: the terminal path
// segment, independent of separator style, trailing separators and
// relative or absolute form. "." and ".." are resolved against the
// working directory first.
func SiteID(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.Newf("empty site path").
			Component("discovery").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := path.Clean(strings.ReplaceAll(p, `\`, "/"))
	base := path.Base(s)

	if base == "." || base == ".." {
		abs, err := filepath.Abs(filepath.FromSlash(s))
		if err != nil {
			return "", errors.New(err).
				Component("discovery").
				Category(errors.CategoryConfiguration).
				Context("path", p).
				Build()
		}
		base = path.Base(path.Clean(filepath.ToSlash(abs)))
	}

	if base == "/" || base == "." || base == ".." || isVolumeName(base) {
		return "", errors.Newf("site path %q has no terminal folder name", p).
			Component("discovery").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return norm.NFC.String(base), nil
}

// isVolumeName reports whether s is a bare Windows drive such as "C:".
func isVolumeName(s string) bool {
	return len(s) == 2 && s[1] == ':' &&
		((s[0] >= 'a' && s[0] <= 'z') || (s[0] >= 'A' && s[0] <= 'Z'))
}

// NormalizeKey converts a recorded file reference into key form:
// slash-separated and NFC-normalized.
func NormalizeKey(k string) string {
	k = strings.ReplaceAll(strings.TrimSpace(k), `\`, "/")
	k = strings.TrimPrefix(k, "./")
	return norm.NFC.String(k)
}
