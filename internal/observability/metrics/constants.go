// Package metrics provides constants used across metric definitions.
package metrics

// Histogram bucket parameters.
const (
	// BucketStart1ms starts exponential buckets at 1ms.
	BucketStart1ms = 0.001
	// BucketStart100ms starts exponential buckets at 100ms.
	BucketStart100ms = 0.1
	// BucketFactor2 doubles each bucket.
	BucketFactor2 = 2
	// BucketCount10 yields ten buckets.
	BucketCount10 = 10
	// BucketCount16 yields sixteen buckets, 100ms to roughly 55 minutes.
	BucketCount16 = 16
)

// PercentageFactor converts a ratio to a percentage.
const PercentageFactor = 100.0

// File outcome label values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Row kind label values.
const (
	RowKindDetection = "detection"
	RowKindSentinel  = "sentinel"
)

// Site status label values.
const (
	SiteCompleted = "completed"
	SiteFailed    = "failed"
	SiteEmpty     = "empty"
)
