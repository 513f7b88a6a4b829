package bot

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalpass/standby-cli/internal/config"
	"github.com/globalpass/standby-cli/internal/model"
)

// flakyAdapter fails a fixed number of times before succeeding.
type flakyAdapter struct {
	name     string
	failures int
	calls    int
}

func (f *flakyAdapter) Name() string { return f.name }

func (f *flakyAdapter) Collect(_ context.Context, _ model.SearchCriteria, _ ProgressFunc) ([]model.RawFlightRecord, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, eris.New("transient scrape failure")
	}
	return []model.RawFlightRecord{{FlightNumber: "UA954"}}, nil
}

func newTestRunner(adapters ...Adapter) *Runner {
	return NewRunner(NewRegistry(adapters...), config.BotsConfig{
		Retries:       1,
		RatePerSecond: 1000,
		RateBurst:     10,
	})
}

func TestRunner_CollectMissingAdapter(t *testing.T) {
	r := newTestRunner()

	_, err := r.Collect(context.Background(), model.SourceSchedule, model.SearchCriteria{}, func(int, string) {})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrSourceUnavailable))
}

func TestRunner_CollectSucceedsFirstTry(t *testing.T) {
	a := &flakyAdapter{name: model.SourcePricing}
	r := newTestRunner(a)

	records, err := r.Collect(context.Background(), model.SourcePricing, model.SearchCriteria{}, func(int, string) {})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, a.calls)
}

func TestRunner_CollectExhaustsRetries(t *testing.T) {
	a := &flakyAdapter{name: model.SourcePricing, failures: 99}
	r := NewRunner(NewRegistry(a), config.BotsConfig{Retries: 1, RatePerSecond: 1000, RateBurst: 10})

	_, err := r.Collect(context.Background(), model.SourcePricing, model.SearchCriteria{}, func(int, string) {})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrSourceUnavailable))
	assert.Equal(t, 1, a.calls)
}

func TestRunner_CollectCanceledContext(t *testing.T) {
	a := &flakyAdapter{name: model.SourcePricing, failures: 99}
	r := newTestRunner(a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Collect(ctx, model.SourcePricing, model.SearchCriteria{}, func(int, string) {})
	require.Error(t, err)
	// The canceled context stops the limiter wait before any attempt.
	assert.Zero(t, a.calls)
}

func TestRegistry_SelectBypassesScheduleForLookup(t *testing.T) {
	reg := NewRegistry(
		&flakyAdapter{name: model.SourceSchedule},
		&flakyAdapter{name: model.SourcePricing},
		&flakyAdapter{name: model.SourceLoads},
	)

	all := reg.Select(model.SearchCriteria{})
	assert.Equal(t, []string{model.SourceSchedule, model.SourcePricing, model.SourceLoads}, all)

	lookup := reg.Select(model.SearchCriteria{FlightNumbers: []string{"UA954"}})
	assert.Equal(t, []string{model.SourcePricing, model.SourceLoads}, lookup)
}

func TestRegistry_DuplicateNamesKeepFirst(t *testing.T) {
	first := &flakyAdapter{name: model.SourceSchedule}
	reg := NewRegistry(first, &flakyAdapter{name: model.SourceSchedule})

	assert.Equal(t, []string{model.SourceSchedule}, reg.Names())
	assert.Same(t, first, reg.Get(model.SourceSchedule))
}
