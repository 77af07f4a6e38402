package errors

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderContext(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("disk full")).
		Category(CategoryMergeIO).
		SiteContext("FOREST_01").
		Context("operation", "append-batch").
		Priority("bogus").
		Build()

	ctx := ee.GetContext()
	assert.Equal(t, "FOREST_01", ctx["site"])
	assert.Equal(t, "append-batch", ctx["operation"])
	assert.Equal(t, PriorityMedium, ee.GetPriority())

	// Returned context is a copy
	ctx["site"] = "changed"
	assert.Equal(t, "FOREST_01", ee.GetContext()["site"])
}

func TestFileContextAnonymizesPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		size     int64
		wantType string
		wantExt  string
		wantSize any
	}{
		{"absolute recording", "/data/01_AUDIO_DATA/FOREST_01/night1/A.WAV", 5 * 1024 * 1024, "absolute-path", "wav", "medium"},
		{"relative without extension", "FOREST_01/notes", 10, "relative-path", "none", "tiny"},
		{"windows path unknown size", `D:\survey\b.flac`, 0, "absolute-path", "flac", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := New(fmt.Errorf("unreadable")).FileContext(tt.path, tt.size).Build().GetContext()
			assert.Equal(t, tt.wantType, ctx["file_type"])
			assert.Equal(t, tt.wantExt, ctx["file_extension"])
			assert.Equal(t, tt.wantSize, ctx["file_size_category"])
			for _, v := range ctx {
				assert.NotContains(t, fmt.Sprint(v), "FOREST_01")
			}
		})
	}
}

func TestTimingContext(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("slow")).
		Category(CategoryTimeout).
		Timing("run_model", 1500*time.Millisecond).
		Build()

	assert.Equal(t, CategoryTimeout, ee.Category)
	assert.Equal(t, "run_model", ee.GetContext()["operation"])
	assert.Equal(t, int64(1500), ee.GetContext()["duration_ms"])
}

func TestCategoryHelpers(t *testing.T) {
	t.Parallel()

	inner := MergeIOError(fmt.Errorf("write failed"), "SITE_A", "append")
	wrapped := fmt.Errorf("site aborted: %w", inner)

	assert.True(t, IsCategory(wrapped, CategoryMergeIO))
	assert.False(t, IsCategory(wrapped, CategoryConfiguration))
	assert.Equal(t, CategoryMergeIO, CategoryOf(wrapped))
	assert.Equal(t, CategoryGeneric, CategoryOf(fmt.Errorf("plain")))

	// Category is inherited when re-wrapping without an explicit category
	rewrapped := New(wrapped).Build()
	assert.Equal(t, CategoryMergeIO, rewrapped.Category)
}

func TestEnhancedErrorIs(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("sentinel")
	ee := New(fmt.Errorf("context: %w", sentinel)).Category(CategoryDetection).Build()

	assert.True(t, Is(ee, sentinel))
	assert.True(t, Is(ee, &EnhancedError{Category: CategoryDetection}))
	assert.False(t, Is(ee, &EnhancedError{Category: CategoryMergeIO}))
}

func TestConfigurationError(t *testing.T) {
	t.Parallel()

	ee := ConfigurationError(fmt.Errorf("audio root missing"))
	require.NotNil(t, ee)
	assert.Equal(t, CategoryConfiguration, ee.Category)
	assert.Equal(t, PriorityHigh, ee.GetPriority())
}

func TestScrubMessageForPrivacy(t *testing.T) {
	t.Parallel()

	scrubbed := scrubMessageForPrivacy("open /home/alice/field/FOREST_01/a.wav: permission denied")
	assert.NotContains(t, scrubbed, "alice")
	assert.Contains(t, scrubbed, "a.wav")

	scrubbed = scrubMessageForPrivacy("webhook https://hooks.example.com/x?token=abc123 failed")
	assert.NotContains(t, scrubbed, "abc123")

	scrubbed = scrubMessageForPrivacy(`read C:\Users\bob\data\b.wav failed`)
	assert.False(t, strings.Contains(scrubbed, "bob"), scrubbed)
}

func TestGenerateErrorTitle(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("x")).
		Component("output").
		Category(CategoryMergeIO).
		Context("operation", "append_batch").
		Build()

	assert.Equal(t, "Output Merge I/O Error Append Batch", generateErrorTitle(ee))
}
