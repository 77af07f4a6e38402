// Package resume decides which audio files still need processing by reading
// what a site's output already records.
package resume

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
	"github.com/d-singer/batdetect2-CLI/internal/output"
)

// maxReportedIssues caps how many individual problems one load reports.
const maxReportedIssues = 5

// failedClassPrefix marks rows that older outputs wrote for files the model
// could not process. Such files are still pending.
const failedClassPrefix = "error:"

// Processed is the set of file keys recorded in a site output.
type Processed struct {
	keys  map[string]struct{}
	paths map[string]struct{}
	// bases holds the base names of recorded absolute paths. They only
	// identify a file whose base name is unique within the site.
	bases map[string]struct{}
}

// NewProcessed builds a set from already-normalized keys.
func NewProcessed(keys ...string) Processed {
	p := Processed{
		keys:  make(map[string]struct{}),
		paths: make(map[string]struct{}),
		bases: make(map[string]struct{}),
	}
	for _, k := range keys {
		p.add(k)
	}
	return p
}

func (p Processed) add(raw string) {
	k := discovery.NormalizeKey(raw)
	if k == "" {
		return
	}
	if isAbsolute(k) {
		// Older outputs sometimes recorded full paths.
		p.paths[k] = struct{}{}
		p.bases[path.Base(k)] = struct{}{}
		return
	}
	p.keys[k] = struct{}{}
}

// Len returns the number of distinct recorded keys and paths.
func (p Processed) Len() int {
	return len(p.keys) + len(p.paths)
}

// Has reports whether key is recorded exactly.
func (p Processed) Has(key string) bool {
	_, ok := p.keys[key]
	return ok
}

func (p Processed) hasBase(base string) bool {
	_, ok := p.bases[base]
	return ok
}

func (p Processed) hasPath(filePath string) bool {
	if len(p.paths) == 0 {
		return false
	}
	_, ok := p.paths[discovery.NormalizeKey(filePath)]
	return ok
}

func isAbsolute(k string) bool {
	return path.IsAbs(k) || (len(k) > 2 && k[1] == ':' && k[2] == '/')
}

// LoadProcessed reads the committed part of a site output and returns the
// recorded file keys. A missing output yields an empty set and no error.
//
// Loading fails open: whatever can be read is returned, and problems are
// reported as a resume-state error alongside the partial set. Files whose
// rows could not be read are therefore processed again.
func LoadProcessed(outputPath string) (Processed, error) {
	processed := NewProcessed()

	rc, err := output.OpenCommitted(outputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return processed, nil
		}
		return processed, ambiguity(err, outputPath, "open_output")
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			GetLogger().Debug("failed to close output", logger.Error(cerr))
		}
	}()

	return processed, readKeys(rc, processed, outputPath)
}

// readKeys adds every file key found in r to processed.
func readKeys(r io.Reader, processed Processed, outputPath string) error {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return ambiguity(err, outputPath, "read_header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	col := output.FileColumn(header)
	if col < 0 {
		return ambiguity(fmt.Errorf("no %q column in header", output.ColumnFilename), outputPath, "read_header")
	}
	classCol := -1
	for i, c := range header {
		if c == output.ColumnClass {
			classCol = i
			break
		}
	}

	var issues []error
	skipped, failedRows := 0, 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				issues = append(issues, err)
				skipped++
				break
			}
			skipped++
			if len(issues) < maxReportedIssues {
				issues = append(issues, err)
			}
			continue
		}
		if col >= len(rec) || strings.TrimSpace(rec[col]) == "" {
			skipped++
			if len(issues) < maxReportedIssues {
				line, _ := cr.FieldPos(0)
				issues = append(issues, fmt.Errorf("line %d: missing file name", line))
			}
			continue
		}
		if classCol >= 0 && classCol < len(rec) &&
			strings.HasPrefix(strings.TrimSpace(rec[classCol]), failedClassPrefix) {
			failedRows++
			continue
		}
		processed.add(rec[col])
	}

	if failedRows > 0 {
		GetLogger().Debug("ignoring rows of files that failed in an earlier run",
			logger.String("output", path.Base(outputPath)),
			logger.Int("rows", failedRows))
	}

	if len(issues) > 0 {
		return errors.New(errors.Join(issues...)).
			Component("resume").
			Category(errors.CategoryResume).
			Context("output", path.Base(outputPath)).
			Context("unreadable_rows", skipped).
			Build()
	}
	return nil
}

func ambiguity(err error, outputPath, operation string) error {
	return errors.New(err).
		Component("resume").
		Category(errors.CategoryResume).
		Context("output", path.Base(outputPath)).
		Context("operation", operation).
		Build()
}

// Filter splits a site's files into those still pending and a count of
// those already recorded. Pending files keep discovery order.
//
// A file also counts as recorded when the output names only its base name
// and no other file of the site shares that base name, which is how older
// outputs identified files.
func Filter(site discovery.Site, processed Processed) (pending []discovery.AudioFile, skipped int) {
	baseCount := make(map[string]int, len(site.Files))
	for _, f := range site.Files {
		baseCount[f.BaseName()]++
	}

	for _, f := range site.Files {
		if isRecorded(f, processed, baseCount) {
			skipped++
			continue
		}
		pending = append(pending, f)
	}
	return pending, skipped
}

func isRecorded(f discovery.AudioFile, processed Processed, baseCount map[string]int) bool {
	if processed.Has(f.Key) || processed.hasPath(f.Path) {
		return true
	}
	base := f.BaseName()
	if baseCount[base] != 1 {
		return false
	}
	return (base != f.Key && processed.Has(base)) || processed.hasBase(base)
}
