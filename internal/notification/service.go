package notification

import (
	"context"
	"time"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
)

// DefaultSendTimeout bounds one delivery attempt.
const DefaultSendTimeout = 30 * time.Second

// Service fans notifications out to its providers.
type Service struct {
	providers []Provider
}

// NewService validates providers and keeps the enabled ones. A provider
// that fails validation is dropped with a warning.
func NewService(providers ...Provider) *Service {
	s := &Service{}
	for _, p := range providers {
		if !p.IsEnabled() {
			continue
		}
		if err := p.ValidateConfig(); err != nil {
			GetLogger().Warn("notification provider disabled",
				logger.String("provider", p.GetName()),
				logger.Error(err))
			continue
		}
		s.providers = append(s.providers, p)
	}
	return s
}

// NewShoutrrrService builds a service delivering to urls.
func NewShoutrrrService(urls []string) *Service {
	if len(urls) == 0 {
		return NewService()
	}
	return NewService(NewShoutrrrProvider("shoutrrr", true, urls, nil, DefaultSendTimeout))
}

// Enabled reports whether any provider will receive notifications.
func (s *Service) Enabled() bool {
	return s != nil && len(s.providers) > 0
}

// Notify delivers n to every provider supporting its type. Failures are
// logged and joined; delivery continues past a failing provider.
func (s *Service) Notify(ctx context.Context, n *Notification) error {
	if !s.Enabled() {
		return nil
	}

	var errs []error
	for _, p := range s.providers {
		if !p.SupportsType(n.Type) {
			continue
		}
		start := time.Now()
		if err := p.Send(ctx, n); err != nil {
			GetLogger().Warn("notification delivery failed",
				logger.String("provider", p.GetName()),
				logger.String("title", n.Title),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		GetLogger().Debug("notification delivered",
			logger.String("provider", p.GetName()),
			logger.Duration("duration", time.Since(start)))
	}
	return errors.Join(errs...)
}
