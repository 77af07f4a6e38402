// model.go defines the run history records
package ledger

import "time"

// Run status values.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// RunRecord is one invocation of the analysis.
type RunRecord struct {
	ID             uint      `gorm:"primaryKey"`
	RunID          string    `gorm:"uniqueIndex;not null"`
	StartedAt      time.Time `gorm:"index"`
	FinishedAt     time.Time
	AudioRoot      string
	OutputDir      string
	Status         string `gorm:"type:varchar(20)"`
	SitesTotal     int
	SitesFailed    int
	FilesProcessed int
	FilesFailed    int
	FilesSkipped   int
	RowsWritten    int
	Error          string       `gorm:"type:text"`
	Sites          []SiteRecord `gorm:"foreignKey:RunRecordID;constraint:OnDelete:CASCADE"`
}

// Duration returns the wall time of the run.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SiteRecord is the outcome of one site within a run.
type SiteRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RunRecordID uint   `gorm:"index;not null"`
	SiteID      string `gorm:"index"`
	Status      string `gorm:"type:varchar(20)"`
	Discovered  int
	Skipped     int
	Succeeded   int
	Failed      int
	Rows        int
	OutputPath  string
	Error       string          `gorm:"type:text"`
	Failures    []FailureRecord `gorm:"foreignKey:SiteRecordID;constraint:OnDelete:CASCADE"`
}

// FailureRecord is one audio file the model could not process.
type FailureRecord struct {
	ID           uint   `gorm:"primaryKey"`
	SiteRecordID uint   `gorm:"index;not null"`
	File         string `gorm:"type:text"`
	Error        string `gorm:"type:text"`
}
