// Package output writes the consolidated per-site result files.
package output

import (
	"strconv"

	"github.com/d-singer/batdetect2-CLI/internal/detection"
)

// SentinelClass marks a file that was processed and produced no detections.
const SentinelClass = "no calls detected"

// Column names of a site output file.
const (
	ColumnSite       = "site"
	ColumnFilename   = "filename"
	ColumnClass      = "class"
	ColumnStartTime  = "start_time"
	ColumnEndTime    = "end_time"
	ColumnLowFreq    = "low_freq"
	ColumnHighFreq   = "high_freq"
	ColumnClassProb  = "class_prob"
	ColumnDetProb    = "det_prob"
	ColumnIndividual = "individual"
	ColumnEvent      = "event"

	// LegacyColumnFile is accepted in place of ColumnFilename in older outputs.
	LegacyColumnFile = "file"
)

// Header is the column order of newly created site outputs.
var Header = []string{
	ColumnSite, ColumnFilename, ColumnClass,
	ColumnStartTime, ColumnEndTime, ColumnLowFreq, ColumnHighFreq,
	ColumnClassProb, ColumnDetProb, ColumnIndividual, ColumnEvent,
}

// Row is one line of a site output: a detection, or the sentinel when
// Detection is nil.
type Row struct {
	Site      string
	File      string
	Detection *detection.Detection
}

// IsSentinel reports whether the row records a file without detections.
func (r Row) IsSentinel() bool {
	return r.Detection == nil
}

// Value returns the cell for column. Unknown columns are empty.
func (r Row) Value(column string) string {
	switch column {
	case ColumnSite:
		return r.Site
	case ColumnFilename, LegacyColumnFile:
		return r.File
	case ColumnClass:
		if r.Detection == nil {
			return SentinelClass
		}
		return r.Detection.Class
	}

	d := r.Detection
	if d == nil {
		return ""
	}
	switch column {
	case ColumnStartTime:
		return formatFloat(d.StartTime)
	case ColumnEndTime:
		return formatFloat(d.EndTime)
	case ColumnLowFreq:
		return formatFloat(d.LowFreq)
	case ColumnHighFreq:
		return formatFloat(d.HighFreq)
	case ColumnClassProb:
		return formatFloat(d.ClassProb)
	case ColumnDetProb:
		return formatFloat(d.DetProb)
	case ColumnIndividual:
		return d.Individual
	case ColumnEvent:
		return d.Event
	default:
		return ""
	}
}

// Record renders the row in the given column order.
func (r Row) Record(columns []string) []string {
	rec := make([]string, len(columns))
	for i, c := range columns {
		rec[i] = r.Value(c)
	}
	return rec
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BuildRows converts a batch's results into output rows. Each successful
// file yields one row per detection, or a single sentinel row when it has
// none. Failed files yield no rows and are returned in failed.
func BuildRows(siteID string, results []detection.FileResult) (rows []Row, succeeded, failed []detection.FileResult) {
	for _, res := range results {
		if !res.OK() {
			failed = append(failed, res)
			continue
		}
		succeeded = append(succeeded, res)

		if len(res.Detections) == 0 {
			rows = append(rows, Row{Site: siteID, File: res.File.Key})
			continue
		}
		for i := range res.Detections {
			rows = append(rows, Row{Site: siteID, File: res.File.Key, Detection: &res.Detections[i]})
		}
	}
	return rows, succeeded, failed
}
