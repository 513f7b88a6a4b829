// Package rank scores consolidated flight candidates and produces the
// final total order. Two mutually exclusive policies exist: standby runs
// rank for boarding risk, booked runs rank for value.
package rank

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/globalpass/standby-cli/internal/config"
	"github.com/globalpass/standby-cli/internal/model"
)

// Engine applies one of the two scoring policies. All weights and tier
// values come from configuration.
type Engine struct {
	standby config.StandbyWeights
	booked  config.BookedWeights
	comfort *ComfortTable
}

// New creates a ranking engine. A nil comfort table falls back to the
// built-in tiers.
func New(cfg config.RankingConfig, comfort *ComfortTable) *Engine {
	if comfort == nil {
		comfort = DefaultComfortTable()
	}
	return &Engine{
		standby: cfg.Standby,
		booked:  cfg.Booked,
		comfort: comfort,
	}
}

// Rank scores every candidate under the policy selected by travel status
// and returns them ordered with Rank assigned 1..N. Scoring is a pure
// function of the candidate fields, so ranking an unchanged set again
// yields an identical order. A candidate missing a policy input gets the
// minimum component value for that input, never an exclusion.
func (e *Engine) Rank(flights []model.ConsolidatedFlight, status model.TravelStatus) []model.ConsolidatedFlight {
	out := make([]model.ConsolidatedFlight, len(flights))
	copy(out, flights)

	if status == model.TravelStatusStandby {
		for i := range out {
			out[i].Score = e.scoreStandby(&out[i])
		}
	} else {
		minPrice, maxPrice := priceBounds(out)
		for i := range out {
			out[i].Score = e.scoreBooked(&out[i], minPrice, maxPrice)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(&out[i], &out[j])
	})
	for i := range out {
		out[i].Rank = i + 1
	}

	zap.L().Debug("rank: ordered candidates",
		zap.String("policy", string(status)),
		zap.Int("count", len(out)),
	)
	return out
}

// scoreStandby implements the risk-mitigation policy: boarding likelihood
// dominates, directness next, time efficiency last.
func (e *Engine) scoreStandby(f *model.ConsolidatedFlight) float64 {
	var boarding float64
	switch f.Chance {
	case model.ChanceHigh:
		boarding = e.standby.ChanceHigh
	case model.ChanceMid:
		boarding = e.standby.ChanceMid
	case model.ChanceLow:
		boarding = e.standby.ChanceLow
	}

	var direct float64
	if f.Stops != nil && *f.Stops == 0 {
		direct = e.standby.DirectBonus
	}

	return boarding*e.standby.BoardingShare +
		direct*e.standby.DirectShare +
		timeComponent(f)*e.standby.TimeShare
}

// scoreBooked implements the value-for-money policy. Price is min-max
// normalized within the run's own candidate set.
func (e *Engine) scoreBooked(f *model.ConsolidatedFlight, minPrice, maxPrice float64) float64 {
	var price float64
	if f.Price != nil {
		spread := maxPrice - minPrice
		if spread < 1 {
			spread = 1
		}
		price = clamp(100-100*(*f.Price-minPrice)/spread, 0, 100)
	}

	return price*e.booked.PriceShare +
		e.comfort.Weight(f.Aircraft)*e.booked.ComfortShare +
		timeComponent(f)*e.booked.TimeShare
}

func timeComponent(f *model.ConsolidatedFlight) float64 {
	return clamp(100-float64(f.DurationMinutes())/10, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func priceBounds(flights []model.ConsolidatedFlight) (min, max float64) {
	first := true
	for i := range flights {
		p := flights[i].Price
		if p == nil {
			continue
		}
		if first || *p < min {
			min = *p
		}
		if first || *p > max {
			max = *p
		}
		first = false
	}
	return min, max
}

// less is the full tie-break chain: higher score, then fewer stops, then
// shorter duration, then earlier departure, then identity key. The final
// key comparison makes the order total and deterministic.
func less(a, b *model.ConsolidatedFlight) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if sa, sb := a.StopCount(), b.StopCount(); sa != sb {
		return sa < sb
	}
	if da, db := a.DurationMinutes(), b.DurationMinutes(); da != db {
		return da < db
	}
	if ta, tb := departureAt(a), departureAt(b); !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a.Key.String() < b.Key.String()
}

// departureAt parses the key's date and time. Unparseable departures
// sort last among equal scores.
func departureAt(f *model.ConsolidatedFlight) time.Time {
	t, err := time.Parse("01/02/2006 15:04", f.Key.DepartureDate+" "+f.Key.DepartureTime)
	if err != nil {
		return time.Unix(1<<40, 0)
	}
	return t
}
