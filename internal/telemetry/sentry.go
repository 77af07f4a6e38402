// Package telemetry wires opt-in Sentry error reporting into the error
// builder. Nothing is sent unless sentry is enabled with a DSN.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/d-singer/batdetect2-CLI/internal/conf"
	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
)

// DefaultFlushTimeout bounds Flush at shutdown.
const DefaultFlushTimeout = 2 * time.Second

// allowedExtra lists the event extras kept by the privacy filter.
var allowedExtra = map[string]bool{
	"error_type": true,
	"component":  true,
	"category":   true,
}

// Option adjusts sentry client options.
type Option func(*sentry.ClientOptions)

// WithTransport replaces the HTTP transport.
func WithTransport(t sentry.Transport) Option {
	return func(o *sentry.ClientOptions) { o.Transport = t }
}

// Init initializes the sentry client and registers the error reporter.
// It returns false without error when reporting is disabled.
func Init(settings conf.SentrySettings, version string, opts ...Option) (bool, error) {
	if !settings.Enabled {
		errors.SetTelemetryReporter(nil)
		return false, nil
	}

	options := sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("batdetect2-cli@%s", version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}

	if err := sentry.Init(options); err != nil {
		return false, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry-init").
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	GetLogger().Info("error reporting enabled", logger.String("release", options.Release))
	return true, nil
}

// Flush waits for queued events, bounded by timeout.
func Flush(timeout time.Duration) {
	if errors.GetTelemetryReporter() == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if !sentry.FlushWithContext(ctx) {
		GetLogger().Warn("error reports not flushed before timeout", logger.Duration("timeout", timeout))
	}
}

// Shutdown flushes and detaches the reporter.
func Shutdown() {
	Flush(DefaultFlushTimeout)
	errors.SetTelemetryReporter(nil)
}

// applyPrivacyFilters strips host and user identity from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if !allowedExtra[k] {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
