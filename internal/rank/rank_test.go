package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalpass/standby-cli/internal/config"
	"github.com/globalpass/standby-cli/internal/model"
)

func testConfig() config.RankingConfig {
	return config.RankingConfig{
		Standby: config.StandbyWeights{
			ChanceHigh:    100,
			ChanceMid:     60,
			ChanceLow:     20,
			DirectBonus:   40,
			BoardingShare: 0.5,
			DirectShare:   0.3,
			TimeShare:     0.2,
		},
		Booked: config.BookedWeights{
			PriceShare:   0.4,
			ComfortShare: 0.35,
			TimeShare:    0.25,
		},
	}
}

func intp(v int) *int          { return &v }
func floatp(v float64) *float64 { return &v }

func flight(num string, chance string, stops *int, duration string) model.ConsolidatedFlight {
	return model.ConsolidatedFlight{
		Key: model.FlightKey{
			FlightNumber:  num,
			Origin:        "FRA",
			Destination:   "SFO",
			DepartureDate: "09/15/2026",
			DepartureTime: "10:00",
		},
		Chance:   chance,
		Stops:    stops,
		Duration: duration,
	}
}

func TestRank_StandbyPolicy(t *testing.T) {
	e := New(testConfig(), nil)

	// Direct HIGH beats one-stop HIGH beats direct LOW.
	flights := []model.ConsolidatedFlight{
		flight("C", model.ChanceLow, intp(0), "10 hr"),
		flight("A", model.ChanceHigh, intp(0), "10 hr"),
		flight("B", model.ChanceHigh, intp(1), "10 hr"),
	}

	out := e.Rank(flights, model.TravelStatusStandby)
	require.Len(t, out, 3)
	assert.Equal(t, "A", out[0].Key.FlightNumber)
	assert.Equal(t, "B", out[1].Key.FlightNumber)
	assert.Equal(t, "C", out[2].Key.FlightNumber)

	// chance 100*0.5 + direct 40*0.3 + time (100-60)*0.2
	assert.InDelta(t, 50+12+8, out[0].Score, 0.001)
	assert.Equal(t, []int{1, 2, 3}, []int{out[0].Rank, out[1].Rank, out[2].Rank})
}

func TestRank_StandbyMissingChanceScoresMinimum(t *testing.T) {
	e := New(testConfig(), nil)

	out := e.Rank([]model.ConsolidatedFlight{
		flight("A", "", intp(0), "10 hr"),
		flight("B", model.ChanceLow, intp(0), "10 hr"),
	}, model.TravelStatusStandby)

	// Missing chance gets zero boarding component but is not excluded.
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[0].Key.FlightNumber)
	assert.Equal(t, "A", out[1].Key.FlightNumber)
}

func TestRank_BookedPolicy(t *testing.T) {
	e := New(testConfig(), nil)

	cheap := flight("A", "", intp(0), "10 hr")
	cheap.Price = floatp(300)
	cheap.Aircraft = "Boeing 747"

	pricey := flight("B", "", intp(0), "10 hr")
	pricey.Price = floatp(900)
	pricey.Aircraft = "Boeing 747"

	out := e.Rank([]model.ConsolidatedFlight{pricey, cheap}, model.TravelStatusBooked)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Key.FlightNumber)

	// price 100*0.4 + comfort 100*0.35 + time (100-60)*0.25
	assert.InDelta(t, 40+35+10, out[0].Score, 0.001)
	// price 0*0.4 for the most expensive candidate
	assert.InDelta(t, 0+35+10, out[1].Score, 0.001)
}

func TestRank_BookedMissingPriceScoresZeroComponent(t *testing.T) {
	e := New(testConfig(), nil)

	priced := flight("A", "", intp(0), "10 hr")
	priced.Price = floatp(500)
	unpriced := flight("B", "", intp(0), "10 hr")

	out := e.Rank([]model.ConsolidatedFlight{unpriced, priced}, model.TravelStatusBooked)
	require.Len(t, out, 2)
	// The only priced candidate is min and max at once, spread clamps to 1.
	assert.Equal(t, "A", out[0].Key.FlightNumber)
}

func TestRank_TieBreakChain(t *testing.T) {
	e := New(testConfig(), nil)

	// Equal scores: fewer stops wins, then shorter duration, then earlier
	// departure, then key string.
	a := flight("A", model.ChanceHigh, intp(1), "10 hr")
	b := flight("B", model.ChanceHigh, intp(1), "8 hr")
	c := flight("C", model.ChanceHigh, intp(0), "10 hr")

	// Give all three the same time component.
	a.Duration = "10 hr"
	b.Duration = "10 hr"
	c.Duration = "10 hr"

	out := e.Rank([]model.ConsolidatedFlight{a, b, c}, model.TravelStatusStandby)
	require.Len(t, out, 3)
	// C scores higher through the direct bonus; A and B tie and fall
	// through to the key comparison.
	assert.Equal(t, "C", out[0].Key.FlightNumber)
	assert.Equal(t, "A", out[1].Key.FlightNumber)
	assert.Equal(t, "B", out[2].Key.FlightNumber)
}

func TestRank_TieBreakDeparture(t *testing.T) {
	e := New(testConfig(), nil)

	early := flight("UA1", model.ChanceHigh, intp(0), "10 hr")
	early.Key.DepartureTime = "08:00"
	late := flight("UA1", model.ChanceHigh, intp(0), "10 hr")
	late.Key.DepartureTime = "18:00"

	out := e.Rank([]model.ConsolidatedFlight{late, early}, model.TravelStatusStandby)
	require.Len(t, out, 2)
	assert.Equal(t, "08:00", out[0].Key.DepartureTime)
}

func TestRank_Deterministic(t *testing.T) {
	e := New(testConfig(), nil)

	flights := []model.ConsolidatedFlight{
		flight("C", model.ChanceLow, intp(2), "14 hr"),
		flight("A", model.ChanceHigh, intp(0), "10 hr"),
		flight("B", model.ChanceMid, intp(1), "12 hr"),
	}

	first := e.Rank(flights, model.TravelStatusStandby)
	second := e.Rank(flights, model.TravelStatusStandby)
	require.Equal(t, first, second)

	// Input slice was not mutated.
	assert.Equal(t, "C", flights[0].Key.FlightNumber)
	assert.Zero(t, flights[0].Rank)
}

func TestRank_EmptyInput(t *testing.T) {
	e := New(testConfig(), nil)
	assert.Empty(t, e.Rank(nil, model.TravelStatusStandby))
	assert.Empty(t, e.Rank(nil, model.TravelStatusBooked))
}

func TestRank_UnknownDurationSortsLast(t *testing.T) {
	e := New(testConfig(), nil)

	known := flight("A", model.ChanceHigh, intp(0), "5 hr")
	unknown := flight("B", model.ChanceHigh, intp(0), "")

	out := e.Rank([]model.ConsolidatedFlight{unknown, known}, model.TravelStatusStandby)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Key.FlightNumber)
}
