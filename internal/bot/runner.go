package bot

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/globalpass/standby-cli/internal/config"
	"github.com/globalpass/standby-cli/internal/model"
	"github.com/globalpass/standby-cli/internal/resilience"
)

// Runner executes adapters with a per-source rate limiter and bounded
// retry. Scrape targets are other people's websites; the limiter spaces
// out collection starts so concurrent runs do not hammer one source.
type Runner struct {
	registry *Registry
	retries  int
	limiters map[string]*rate.Limiter
}

// NewRunner wraps the registry with the configured resilience settings.
func NewRunner(registry *Registry, cfg config.BotsConfig) *Runner {
	limiters := make(map[string]*rate.Limiter, len(registry.Names()))
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	for _, name := range registry.Names() {
		limiters[name] = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &Runner{
		registry: registry,
		retries:  cfg.Retries,
		limiters: limiters,
	}
}

// Collect runs one source's adapter to completion. Transient failures
// are retried; the terminal error wraps ErrSourceUnavailable so the
// registry can record it without inspecting adapter internals.
func (r *Runner) Collect(ctx context.Context, source string, criteria model.SearchCriteria, progress ProgressFunc) ([]model.RawFlightRecord, error) {
	adapter := r.registry.Get(source)
	if adapter == nil {
		return nil, eris.Wrapf(model.ErrSourceUnavailable, "no adapter registered for %s", source)
	}

	if limiter := r.limiters[source]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(model.ErrSourceUnavailable, "%s: rate wait: %v", source, err)
		}
	}

	var records []model.RawFlightRecord
	retryCfg := resilience.DefaultRetryConfig(r.retries)
	retryCfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("bot: retrying source",
			zap.String("source", source),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		out, err := adapter.Collect(ctx, criteria, progress)
		if err != nil {
			return err
		}
		records = out
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(model.ErrSourceUnavailable, "%s: %v", source, err)
	}
	return records, nil
}
