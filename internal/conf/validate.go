// conf/validate.go

package conf

import (
	"fmt"
	"strings"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("invalid settings: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates the entire Settings struct. All problems are
// collected into one ValidationError carried by a configuration error.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validatePaths(settings)...)
	ve.Errors = append(ve.Errors, validateBatchSettings(&settings.Batch)...)
	ve.Errors = append(ve.Errors, validateDetectionSettings(&settings.Detection)...)
	ve.Errors = append(ve.Errors, validateExtensions(settings.Input.Extensions)...)

	if settings.Ledger.Enabled && strings.TrimSpace(settings.Ledger.Path) == "" {
		ve.Errors = append(ve.Errors, "ledger path must not be empty when the ledger is enabled")
	}
	if settings.Sentry.Enabled && strings.TrimSpace(settings.Sentry.DSN) == "" {
		ve.Errors = append(ve.Errors, "sentry dsn must be set when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validatePaths(settings *Settings) []string {
	var errs []string
	if strings.TrimSpace(settings.Input.AudioRoot) == "" {
		errs = append(errs, "audio root must not be empty")
	}
	if strings.TrimSpace(settings.Output.Dir) == "" {
		errs = append(errs, "output directory must not be empty")
	}
	return errs
}

func validateBatchSettings(settings *BatchSettings) []string {
	var errs []string
	if settings.Size < 1 {
		errs = append(errs, fmt.Sprintf("batch size must be at least 1, got %d", settings.Size))
	}
	if settings.SiteWorkers < 1 {
		errs = append(errs, fmt.Sprintf("site workers must be at least 1, got %d", settings.SiteWorkers))
	}
	return errs
}

func validateDetectionSettings(settings *DetectionSettings) []string {
	var errs []string
	if settings.Threshold < 0 || settings.Threshold > 1 {
		errs = append(errs, "detection threshold must be between 0 and 1")
	}
	if settings.TimeExpansionFactor <= 0 {
		errs = append(errs, "time expansion factor must be greater than 0")
	}
	if strings.TrimSpace(settings.Binary) == "" {
		errs = append(errs, "detection binary must not be empty")
	}
	if settings.Timeout < 0 {
		errs = append(errs, "detection timeout must not be negative")
	}
	return errs
}

func validateExtensions(exts []string) []string {
	if len(exts) == 0 {
		return []string{"at least one audio extension is required"}
	}
	var errs []string
	for _, ext := range exts {
		if strings.Trim(strings.TrimSpace(ext), ".") == "" {
			errs = append(errs, fmt.Sprintf("audio extension %q is empty", ext))
		}
	}
	return errs
}
