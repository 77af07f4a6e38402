package analysis

import (
	"time"

	"github.com/d-singer/batdetect2-CLI/internal/discovery"
	"github.com/d-singer/batdetect2-CLI/internal/output"
)

// SiteStatus is the final state of a site within a run.
type SiteStatus string

const (
	SiteCompleted SiteStatus = "completed"
	SiteFailed    SiteStatus = "failed"
	SiteEmpty     SiteStatus = "empty"
	SiteCancelled SiteStatus = "cancelled"
)

// FileFailure names a file the model could not process and why.
type FileFailure struct {
	Key string
	Err error
}

// SiteResult is the outcome of one site.
type SiteResult struct {
	SiteID     string
	OutputPath string
	Status     SiteStatus
	Err        error // site-fatal error, nil unless Status is SiteFailed

	Discovered int
	Skipped    int
	Succeeded  int
	Failed     int
	Rows       int
	Detections int
	Sentinels  int
	Batches    int

	// States holds the final state of every discovered file by key.
	States   map[string]discovery.FileState
	Failures []FileFailure
	Recovery output.Recovery
	// ResumeErr is set when prior output could only be read partially.
	ResumeErr error
	Duration  time.Duration
}

// Pending returns the files neither skipped nor finished.
func (r SiteResult) Pending() int {
	return r.Discovered - r.Skipped - r.Succeeded - r.Failed
}

// Summary reports one run.
type Summary struct {
	RunID      string
	AudioRoot  string
	OutputDir  string
	StartedAt  time.Time
	FinishedAt time.Time
	Cancelled  bool
	Sites      []SiteResult
}

// Duration returns the wall time of the run.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// SitesCompleted counts sites that finished without a site-fatal error.
func (s *Summary) SitesCompleted() int {
	return s.countStatus(SiteCompleted)
}

// SitesFailed counts sites aborted by a site-fatal error.
func (s *Summary) SitesFailed() int {
	return s.countStatus(SiteFailed)
}

func (s *Summary) countStatus(status SiteStatus) int {
	n := 0
	for i := range s.Sites {
		if s.Sites[i].Status == status {
			n++
		}
	}
	return n
}

// FilesDiscovered totals discovered files.
func (s *Summary) FilesDiscovered() int {
	return s.sum(func(r *SiteResult) int { return r.Discovered })
}

// FilesSkipped totals files already recorded by earlier runs.
func (s *Summary) FilesSkipped() int {
	return s.sum(func(r *SiteResult) int { return r.Skipped })
}

// FilesSucceeded totals files whose rows were committed.
func (s *Summary) FilesSucceeded() int {
	return s.sum(func(r *SiteResult) int { return r.Succeeded })
}

// FilesFailed totals files the model could not process.
func (s *Summary) FilesFailed() int {
	return s.sum(func(r *SiteResult) int { return r.Failed })
}

// RowsWritten totals committed rows, sentinels included.
func (s *Summary) RowsWritten() int {
	return s.sum(func(r *SiteResult) int { return r.Rows })
}

func (s *Summary) sum(field func(*SiteResult) int) int {
	n := 0
	for i := range s.Sites {
		n += field(&s.Sites[i])
	}
	return n
}

// HasProblems reports whether any file or site failed.
func (s *Summary) HasProblems() bool {
	return s.FilesFailed() > 0 || s.SitesFailed() > 0
}

// Site returns the result for siteID.
func (s *Summary) Site(siteID string) (SiteResult, bool) {
	for _, r := range s.Sites {
		if r.SiteID == siteID {
			return r, true
		}
	}
	return SiteResult{}, false
}
