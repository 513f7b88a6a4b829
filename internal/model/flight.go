package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Source names of the data-collection bots. Each bot interrogates one
// external system and contributes a different slice of a flight record.
const (
	// SourceSchedule is the staff booking portal: the actionability
	// source. Supplies the selectable flag and the boarding chance.
	SourceSchedule = "myidtravel"
	// SourcePricing is the commercial aggregator: supplies price, stop
	// count, and scheduled times.
	SourcePricing = "google_flights"
	// SourceLoads is the load-sharing app: supplies per-cabin seat counts
	// and aircraft type.
	SourceLoads = "stafftraveler"
)

// Sources lists all bot names in the canonical merge order. The schedule
// source merges first so identity fields come from the actionability
// source when it reported.
var Sources = []string{SourceSchedule, SourcePricing, SourceLoads}

// Boarding chance tiers reported by the schedule source.
const (
	ChanceHigh = "HIGH"
	ChanceMid  = "MID"
	ChanceLow  = "LOW"
)

// ScheduleFields carries the schedule-source specific payload.
type ScheduleFields struct {
	Selectable bool   `json:"selectable"`
	Chance     string `json:"chance,omitempty"` // HIGH, MID, LOW, or empty
	Cabin      string `json:"cabin,omitempty"`
}

// PricingFields carries the pricing-source specific payload. Numerics are
// pointers so an unreported value stays null instead of a silent zero.
type PricingFields struct {
	Price    *float64 `json:"price,omitempty"`
	Currency string   `json:"currency,omitempty"`
	Stops    *int     `json:"stops,omitempty"`
}

// LoadFields carries the loads-source specific payload: seat bands keyed
// by cabin (eco, ecoplus, bus, first, nonrev).
type LoadFields struct {
	Seats map[string]string `json:"seats,omitempty"`
}

// RawFlightRecord is one flight as reported by a single source. The
// Source tag selects which payload struct is populated; the rest stay
// nil. Immutable once produced by an adapter.
type RawFlightRecord struct {
	Source        string `json:"source"`
	AirlineCode   string `json:"airline_code,omitempty"`
	AirlineName   string `json:"airline_name,omitempty"`
	FlightNumber  string `json:"flight_number"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"` // MM/DD/YYYY
	DepartureTime string `json:"departure_time"` // HH:MM or h:MM AM/PM
	ArrivalTime   string `json:"arrival_time,omitempty"`
	Aircraft      string `json:"aircraft,omitempty"`
	Duration      string `json:"duration,omitempty"` // e.g. "13 hr 20 min"

	Schedule *ScheduleFields `json:"schedule,omitempty"`
	Pricing  *PricingFields  `json:"pricing,omitempty"`
	Loads    *LoadFields     `json:"loads,omitempty"`
}

// FlightKey identifies one physical flight across sources: flight number
// with whitespace stripped, route, departure date, and departure time
// rounded to the minute. Records with equal keys merge even when minor
// fields disagree.
type FlightKey struct {
	FlightNumber  string `json:"flight_number"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
	DepartureTime string `json:"departure_time"`
}

// String renders the canonical form used for deterministic ordering.
func (k FlightKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", k.FlightNumber, k.Origin, k.Destination, k.DepartureDate, k.DepartureTime)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeFlightNumber strips all whitespace and uppercases, so "ua 954"
// and "UA954" correlate.
func NormalizeFlightNumber(v string) string {
	return strings.ToUpper(whitespaceRe.ReplaceAllString(v, ""))
}

// timeLayouts are the departure time formats seen across sources.
var timeLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM"}

// NormalizeClockTime parses a source time string and renders it as HH:MM.
// Unparseable input is returned trimmed, so an odd format still yields a
// stable (if unrounded) key.
func NormalizeClockTime(v string) string {
	// The pricing source emits a narrow no-break space before AM/PM.
	cleaned := strings.TrimSpace(strings.ReplaceAll(v, "\u202f", " "))
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format("15:04")
		}
	}
	return cleaned
}

// KeyFor computes the identity key of a raw record.
func KeyFor(r RawFlightRecord) FlightKey {
	return FlightKey{
		FlightNumber:  NormalizeFlightNumber(r.FlightNumber),
		Origin:        strings.ToUpper(strings.TrimSpace(r.Origin)),
		Destination:   strings.ToUpper(strings.TrimSpace(r.Destination)),
		DepartureDate: strings.TrimSpace(r.DepartureDate),
		DepartureTime: NormalizeClockTime(r.DepartureTime),
	}
}

// unknownDurationMinutes sorts unparseable durations last.
const unknownDurationMinutes = 1440

// ParseDurationMinutes converts a source duration string like
// "13 hr 20 min" or "2h05m" into minutes. Unknown input maps to a full
// day so it ranks behind every parsed duration.
func ParseDurationMinutes(v string) int {
	if strings.TrimSpace(v) == "" {
		return unknownDurationMinutes
	}
	clean := strings.ToLower(v)
	clean = strings.ReplaceAll(clean, "hr", "h")
	clean = strings.ReplaceAll(clean, "min", "m")
	clean = whitespaceRe.ReplaceAllString(clean, "")

	var hours, minutes int
	var err error
	rest := clean
	if i := strings.Index(clean, "h"); i >= 0 {
		hours, err = strconv.Atoi(clean[:i])
		if err != nil {
			return unknownDurationMinutes
		}
		rest = clean[i+1:]
	}
	if rest != "" {
		rest = strings.TrimSuffix(rest, "m")
		if rest != "" {
			minutes, err = strconv.Atoi(rest)
			if err != nil {
				return unknownDurationMinutes
			}
		}
	}
	if hours == 0 && minutes == 0 {
		return unknownDurationMinutes
	}
	return hours*60 + minutes
}

// ChanceToSeatBand maps a boarding chance tier to the seat band shown in
// reports (HIGH→9+, MID→4-8, LOW→0-3).
func ChanceToSeatBand(chance string) string {
	switch strings.ToUpper(strings.TrimSpace(chance)) {
	case ChanceHigh:
		return "9+"
	case ChanceMid:
		return "4-8"
	case ChanceLow:
		return "0-3"
	default:
		return ""
	}
}

// ConsolidatedFlight is the union of every source's fields for one
// FlightKey, with per-field provenance and the final score and rank. The
// key is immutable after creation.
type ConsolidatedFlight struct {
	Key         FlightKey `json:"key"`
	AirlineCode string    `json:"airline_code,omitempty"`
	AirlineName string    `json:"airline_name,omitempty"`
	ArrivalTime string    `json:"arrival_time,omitempty"`
	Aircraft    string    `json:"aircraft,omitempty"`
	Duration    string    `json:"duration,omitempty"`

	Selectable *bool    `json:"selectable,omitempty"`
	Chance     string   `json:"chance,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	Currency   string   `json:"currency,omitempty"`
	Stops      *int     `json:"stops,omitempty"`

	// Seats is keyed source → cabin → band.
	Seats map[string]map[string]string `json:"seats,omitempty"`

	// Sources lists contributing bots in merge order.
	Sources []string `json:"sources"`
	// Provenance records which source supplied each populated field.
	Provenance map[string]string `json:"provenance"`

	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// DurationMinutes parses the consolidated duration field.
func (f *ConsolidatedFlight) DurationMinutes() int {
	return ParseDurationMinutes(f.Duration)
}

// StopCount returns the reported stop count, or the unknown ceiling when
// the pricing source never saw the flight.
func (f *ConsolidatedFlight) StopCount() int {
	if f.Stops == nil {
		return 99
	}
	return *f.Stops
}

// HasSource reports whether the named bot contributed to this record.
func (f *ConsolidatedFlight) HasSource(source string) bool {
	for _, s := range f.Sources {
		if s == source {
			return true
		}
	}
	return false
}
