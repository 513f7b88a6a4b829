// Package consolidate correlates raw per-source flight records into
// consolidated candidates keyed by flight identity, and applies the
// standby gatekeeper before ranking.
package consolidate

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/globalpass/standby-cli/internal/model"
)

// Options configures merge behavior.
type Options struct {
	// RetainUnverified keeps candidates the schedule source never
	// reported instead of dropping them at the gatekeeper.
	RetainUnverified bool
}

// Merge folds raw records into the consolidated set. Records with an
// identity key already present enrich the existing candidate: a field
// populated by an earlier source is never overwritten, only empty fields
// are filled, and provenance records which source supplied what. New
// keys create new candidates. The identity key itself is immutable.
func Merge(dst map[model.FlightKey]*model.ConsolidatedFlight, records []model.RawFlightRecord) {
	for _, r := range records {
		key := model.KeyFor(r)
		if key.FlightNumber == "" {
			continue
		}

		cf, ok := dst[key]
		if !ok {
			cf = &model.ConsolidatedFlight{
				Key:        key,
				Seats:      make(map[string]map[string]string),
				Provenance: make(map[string]string),
			}
			dst[key] = cf
		}
		if !cf.HasSource(r.Source) {
			cf.Sources = append(cf.Sources, r.Source)
		}

		fillString(cf, "airline_code", &cf.AirlineCode, r.AirlineCode, r.Source)
		fillString(cf, "airline_name", &cf.AirlineName, r.AirlineName, r.Source)
		fillString(cf, "arrival_time", &cf.ArrivalTime, r.ArrivalTime, r.Source)
		fillString(cf, "aircraft", &cf.Aircraft, r.Aircraft, r.Source)
		fillString(cf, "duration", &cf.Duration, r.Duration, r.Source)

		if r.Schedule != nil {
			if cf.Selectable == nil {
				selectable := r.Schedule.Selectable
				cf.Selectable = &selectable
				cf.Provenance["selectable"] = r.Source
			}
			fillString(cf, "chance", &cf.Chance, r.Schedule.Chance, r.Source)
			if band := model.ChanceToSeatBand(r.Schedule.Chance); band != "" {
				seats := seatsFor(cf, r.Source)
				cabin := cabinKey(r.Schedule.Cabin)
				if seats[cabin] == "" {
					seats[cabin] = band
				}
			}
		}

		if r.Pricing != nil {
			if cf.Price == nil && r.Pricing.Price != nil {
				price := *r.Pricing.Price
				cf.Price = &price
				cf.Currency = r.Pricing.Currency
				cf.Provenance["price"] = r.Source
			}
			if cf.Stops == nil && r.Pricing.Stops != nil {
				stops := *r.Pricing.Stops
				cf.Stops = &stops
				cf.Provenance["stops"] = r.Source
			}
		}

		if r.Loads != nil && len(r.Loads.Seats) > 0 {
			seats := seatsFor(cf, r.Source)
			for cabin, band := range r.Loads.Seats {
				if seats[cabin] == "" && band != "" {
					seats[cabin] = band
				}
			}
			if _, ok := cf.Provenance["seats"]; !ok {
				cf.Provenance["seats"] = r.Source
			}
		}
	}
}

func fillString(cf *model.ConsolidatedFlight, field string, dst *string, v, source string) {
	if *dst != "" || strings.TrimSpace(v) == "" {
		return
	}
	*dst = strings.TrimSpace(v)
	cf.Provenance[field] = source
}

func seatsFor(cf *model.ConsolidatedFlight, source string) map[string]string {
	seats, ok := cf.Seats[source]
	if !ok {
		seats = make(map[string]string)
		cf.Seats[source] = seats
	}
	return seats
}

// cabinKey maps a free-form class string onto a seat map cabin. Premium
// economy folds into economy the way the upstream form does.
func cabinKey(class string) string {
	c := strings.ToLower(class)
	switch {
	case strings.Contains(c, "business"):
		return "business"
	case strings.Contains(c, "first"):
		return "first"
	default:
		return "economy"
	}
}

// Collect returns the consolidated candidates ordered by identity key so
// downstream steps see a deterministic sequence regardless of map order.
func Collect(dst map[model.FlightKey]*model.ConsolidatedFlight) []model.ConsolidatedFlight {
	out := make([]model.ConsolidatedFlight, 0, len(dst))
	for _, cf := range dst {
		out = append(out, *cf)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// Gatekeep applies the standby eligibility filter. A candidate without a
// positive selectable indication cannot be acted upon, so it is removed
// entirely rather than scored low. Candidates the schedule source never
// saw are dropped too unless RetainUnverified is set. Booked runs pass
// through untouched.
func Gatekeep(flights []model.ConsolidatedFlight, status model.TravelStatus, opts Options) []model.ConsolidatedFlight {
	if status != model.TravelStatusStandby {
		return flights
	}

	kept := flights[:0:0]
	for _, f := range flights {
		switch {
		case f.Selectable == nil:
			if opts.RetainUnverified {
				kept = append(kept, f)
			} else {
				zap.L().Debug("consolidate: dropping unverified candidate",
					zap.String("flight", f.Key.String()),
				)
			}
		case *f.Selectable:
			kept = append(kept, f)
		default:
			zap.L().Debug("consolidate: dropping unselectable candidate",
				zap.String("flight", f.Key.String()),
			)
		}
	}
	return kept
}

// FromBots merges every done bot's records in canonical source order and
// returns the gatekept candidates. Bots that failed contribute nothing.
func FromBots(bots map[string]*model.BotTaskState, status model.TravelStatus, opts Options) []model.ConsolidatedFlight {
	dst := make(map[model.FlightKey]*model.ConsolidatedFlight)
	for _, source := range model.Sources {
		task, ok := bots[source]
		if !ok || task.State != model.BotStateDone {
			continue
		}
		Merge(dst, task.Records)
	}
	return Gatekeep(Collect(dst), status, opts)
}
