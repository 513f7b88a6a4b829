package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalpass/standby-cli/internal/model"
)

func scheduleRecord(selectable bool, chance string) model.RawFlightRecord {
	return model.RawFlightRecord{
		Source:        model.SourceSchedule,
		FlightNumber:  "UA954",
		Origin:        "FRA",
		Destination:   "SFO",
		DepartureDate: "09/15/2026",
		DepartureTime: "10:05",
		AirlineName:   "United",
		Schedule:      &model.ScheduleFields{Selectable: selectable, Chance: chance, Cabin: "Economy"},
	}
}

func pricingRecord(price float64, stops int) model.RawFlightRecord {
	return model.RawFlightRecord{
		Source:        model.SourcePricing,
		FlightNumber:  "ua 954",
		Origin:        "fra",
		Destination:   "sfo",
		DepartureDate: "09/15/2026",
		DepartureTime: "10:05 AM",
		AirlineName:   "United Airlines",
		Duration:      "11 hr 30 min",
		Pricing:       &model.PricingFields{Price: &price, Currency: "EUR", Stops: &stops},
	}
}

func TestMerge_CorrelatesAndFillsFirstWriterWins(t *testing.T) {
	dst := make(map[model.FlightKey]*model.ConsolidatedFlight)
	Merge(dst, []model.RawFlightRecord{scheduleRecord(true, model.ChanceHigh)})
	Merge(dst, []model.RawFlightRecord{pricingRecord(420, 0)})

	require.Len(t, dst, 1)
	var cf *model.ConsolidatedFlight
	for _, v := range dst {
		cf = v
	}

	// Airline name came from the schedule source and was not overwritten.
	assert.Equal(t, "United", cf.AirlineName)
	assert.Equal(t, model.SourceSchedule, cf.Provenance["airline_name"])

	// Pricing filled what schedule left empty.
	assert.Equal(t, "11 hr 30 min", cf.Duration)
	assert.Equal(t, model.SourcePricing, cf.Provenance["duration"])
	require.NotNil(t, cf.Price)
	assert.Equal(t, 420.0, *cf.Price)
	assert.Equal(t, model.SourcePricing, cf.Provenance["price"])

	require.NotNil(t, cf.Selectable)
	assert.True(t, *cf.Selectable)
	assert.Equal(t, []string{model.SourceSchedule, model.SourcePricing}, cf.Sources)
}

func TestMerge_ChanceBecomesSeatBand(t *testing.T) {
	dst := make(map[model.FlightKey]*model.ConsolidatedFlight)
	Merge(dst, []model.RawFlightRecord{scheduleRecord(true, model.ChanceMid)})

	for _, cf := range dst {
		assert.Equal(t, "4-8", cf.Seats[model.SourceSchedule]["economy"])
	}
}

func TestMerge_LoadsSeatsByCabin(t *testing.T) {
	dst := make(map[model.FlightKey]*model.ConsolidatedFlight)
	rec := scheduleRecord(true, "")
	rec.Source = model.SourceLoads
	rec.Schedule = nil
	rec.Loads = &model.LoadFields{Seats: map[string]string{"eco": "9+", "bus": "0-3"}}
	Merge(dst, []model.RawFlightRecord{rec})

	for _, cf := range dst {
		assert.Equal(t, "9+", cf.Seats[model.SourceLoads]["eco"])
		assert.Equal(t, "0-3", cf.Seats[model.SourceLoads]["bus"])
		assert.Equal(t, model.SourceLoads, cf.Provenance["seats"])
	}
}

func TestMerge_SkipsRecordsWithoutFlightNumber(t *testing.T) {
	dst := make(map[model.FlightKey]*model.ConsolidatedFlight)
	Merge(dst, []model.RawFlightRecord{{Source: model.SourcePricing, Origin: "FRA", Destination: "SFO"}})
	assert.Empty(t, dst)
}

func TestMerge_NegativeSelectableIsRecorded(t *testing.T) {
	dst := make(map[model.FlightKey]*model.ConsolidatedFlight)
	Merge(dst, []model.RawFlightRecord{scheduleRecord(false, "")})

	for _, cf := range dst {
		require.NotNil(t, cf.Selectable)
		assert.False(t, *cf.Selectable)
	}
}

func TestCollect_DeterministicOrder(t *testing.T) {
	dst := make(map[model.FlightKey]*model.ConsolidatedFlight)
	recA := scheduleRecord(true, model.ChanceHigh)
	recB := scheduleRecord(true, model.ChanceLow)
	recB.FlightNumber = "AA100"
	Merge(dst, []model.RawFlightRecord{recA, recB})

	out := Collect(dst)
	require.Len(t, out, 2)
	assert.Equal(t, "AA100", out[0].Key.FlightNumber)
	assert.Equal(t, "UA954", out[1].Key.FlightNumber)
}

func TestGatekeep_Standby(t *testing.T) {
	yes, no := true, false
	flights := []model.ConsolidatedFlight{
		{Key: model.FlightKey{FlightNumber: "A"}, Selectable: &yes},
		{Key: model.FlightKey{FlightNumber: "B"}, Selectable: &no},
		{Key: model.FlightKey{FlightNumber: "C"}},
	}

	kept := Gatekeep(flights, model.TravelStatusStandby, Options{})
	require.Len(t, kept, 1)
	assert.Equal(t, "A", kept[0].Key.FlightNumber)

	// Unverified candidates survive with the retention switch.
	kept = Gatekeep(flights, model.TravelStatusStandby, Options{RetainUnverified: true})
	require.Len(t, kept, 2)
	assert.Equal(t, "A", kept[0].Key.FlightNumber)
	assert.Equal(t, "C", kept[1].Key.FlightNumber)
}

func TestGatekeep_BookedPassesThrough(t *testing.T) {
	no := false
	flights := []model.ConsolidatedFlight{
		{Key: model.FlightKey{FlightNumber: "B"}, Selectable: &no},
		{Key: model.FlightKey{FlightNumber: "C"}},
	}
	kept := Gatekeep(flights, model.TravelStatusBooked, Options{})
	assert.Len(t, kept, 2)
}

func TestFromBots_MergesOnlyDoneBots(t *testing.T) {
	bots := map[string]*model.BotTaskState{
		model.SourceSchedule: {
			Bot:     model.SourceSchedule,
			State:   model.BotStateDone,
			Records: []model.RawFlightRecord{scheduleRecord(true, model.ChanceHigh)},
		},
		model.SourcePricing: {
			Bot:     model.SourcePricing,
			State:   model.BotStateError,
			Records: []model.RawFlightRecord{pricingRecord(420, 0)},
		},
	}

	out := FromBots(bots, model.TravelStatusStandby, Options{})
	require.Len(t, out, 1)
	// The failed pricing bot contributed nothing.
	assert.Nil(t, out[0].Price)
	assert.Equal(t, []string{model.SourceSchedule}, out[0].Sources)
}

func TestFromBots_CanonicalSourceOrder(t *testing.T) {
	bots := map[string]*model.BotTaskState{
		model.SourcePricing: {
			Bot:     model.SourcePricing,
			State:   model.BotStateDone,
			Records: []model.RawFlightRecord{pricingRecord(420, 0)},
		},
		model.SourceSchedule: {
			Bot:     model.SourceSchedule,
			State:   model.BotStateDone,
			Records: []model.RawFlightRecord{scheduleRecord(true, model.ChanceHigh)},
		},
	}

	out := FromBots(bots, model.TravelStatusStandby, Options{})
	require.Len(t, out, 1)
	// Schedule merges first regardless of map iteration order, so the
	// airline name is its shorter variant.
	assert.Equal(t, "United", out[0].AirlineName)
	assert.Equal(t, []string{model.SourceSchedule, model.SourcePricing}, out[0].Sources)
}
