package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// FlightType describes the trip shape of a search.
type FlightType string

const (
	FlightTypeOneWay    FlightType = "one-way"
	FlightTypeRoundTrip FlightType = "round-trip"
	FlightTypeMultiLeg  FlightType = "multiple-legs"
)

// TravelStatus selects the ranking policy for a run.
type TravelStatus string

const (
	// TravelStatusStandby ranks under the risk-mitigation policy.
	TravelStatusStandby TravelStatus = "standby"
	// TravelStatusBooked ranks under the value-for-money policy.
	TravelStatusBooked TravelStatus = "booked"
)

// Trip is one origin/destination pair of a search.
type Trip struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// ItineraryLeg carries the date, time, and cabin class for one trip leg.
type ItineraryLeg struct {
	Date  string `json:"date"` // MM/DD/YYYY
	Time  string `json:"time"`
	Class string `json:"class"`
}

// Traveller is a named traveller on the run.
type Traveller struct {
	Name       string `json:"name"`
	Salutation string `json:"salutation"` // MR or MS
	Checked    bool   `json:"checked"`
}

// TravelPartner is an accompanying adult or child.
type TravelPartner struct {
	Type       string `json:"type"` // adult or child
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Salutation string `json:"salutation,omitempty"`
	DOB        string `json:"dob,omitempty"` // MM/DD/YYYY, required for child
	OwnSeat    *bool  `json:"own_seat,omitempty"`
}

// SearchCriteria is the normalized input of one run.
type SearchCriteria struct {
	FlightType    FlightType      `json:"flight_type"`
	TravelStatus  TravelStatus    `json:"travel_status"`
	Airline       string          `json:"airline,omitempty"`
	NonstopOnly   bool            `json:"nonstop_flights"`
	Trips         []Trip          `json:"trips"`
	Itinerary     []ItineraryLeg  `json:"itinerary"`
	FlightNumbers []string        `json:"flight_numbers,omitempty"`
	Travellers    []Traveller     `json:"traveller,omitempty"`
	Partners      []TravelPartner `json:"travel_partner,omitempty"`
	AutoRequest   bool            `json:"auto_request_loads"`
}

// IsLookup reports whether the search targets specific flight numbers
// instead of an open schedule search.
func (c *SearchCriteria) IsLookup() bool {
	return len(c.FlightNumbers) > 0
}

// Route renders the trips as a compact route string for logs.
func (c *SearchCriteria) Route() string {
	if len(c.Trips) == 0 {
		return "N/A"
	}
	parts := make([]string, len(c.Trips))
	for i, t := range c.Trips {
		parts[i] = fmt.Sprintf("%s -> %s", t.Origin, t.Destination)
	}
	return strings.Join(parts, " | ")
}

func validDateMMDDYYYY(v string) bool {
	_, err := time.Parse("01/02/2006", v)
	return err == nil
}

// Normalize trims and uppercases fields in place, applies defaults, and
// returns every validation problem found. An empty slice means the
// criteria are dispatchable.
func (c *SearchCriteria) Normalize() []string {
	var errs []string

	c.FlightType = FlightType(strings.TrimSpace(string(c.FlightType)))
	c.TravelStatus = TravelStatus(strings.TrimSpace(string(c.TravelStatus)))
	c.Airline = strings.TrimSpace(c.Airline)

	if c.FlightType == "" {
		errs = append(errs, "flight_type is required.")
	}
	switch c.TravelStatus {
	case "":
		errs = append(errs, "travel_status is required.")
	case TravelStatusStandby, TravelStatusBooked:
	default:
		errs = append(errs, fmt.Sprintf("travel_status %q must be standby or booked.", c.TravelStatus))
	}

	if len(c.Trips) == 0 {
		errs = append(errs, "trips must be a non-empty array.")
	}
	for i := range c.Trips {
		c.Trips[i].Origin = strings.ToUpper(strings.TrimSpace(c.Trips[i].Origin))
		c.Trips[i].Destination = strings.ToUpper(strings.TrimSpace(c.Trips[i].Destination))
		if c.Trips[i].Origin == "" {
			errs = append(errs, fmt.Sprintf("trips[%d].origin is required.", i))
		}
		if c.Trips[i].Destination == "" {
			errs = append(errs, fmt.Sprintf("trips[%d].destination is required.", i))
		}
	}

	if len(c.Itinerary) == 0 {
		errs = append(errs, "itinerary must be a non-empty array.")
	}
	for i := range c.Itinerary {
		leg := &c.Itinerary[i]
		leg.Date = strings.TrimSpace(leg.Date)
		leg.Time = strings.TrimSpace(leg.Time)
		leg.Class = strings.TrimSpace(leg.Class)
		switch {
		case leg.Date == "":
			errs = append(errs, fmt.Sprintf("itinerary[%d].date is required.", i))
		case !validDateMMDDYYYY(leg.Date):
			errs = append(errs, fmt.Sprintf("itinerary[%d].date must be MM/DD/YYYY.", i))
		}
		if leg.Time == "" {
			errs = append(errs, fmt.Sprintf("itinerary[%d].time is required.", i))
		}
		if leg.Class == "" {
			errs = append(errs, fmt.Sprintf("itinerary[%d].class is required.", i))
		}
	}

	// Leg counts are strict per flight type.
	switch c.FlightType {
	case FlightTypeOneWay:
		if len(c.Trips) != 1 {
			errs = append(errs, "one-way requires exactly 1 trip.")
		}
	case FlightTypeRoundTrip:
		if len(c.Trips) != 2 {
			errs = append(errs, "round-trip requires exactly 2 trips.")
		}
	case FlightTypeMultiLeg:
		if len(c.Trips) < 1 {
			errs = append(errs, "multiple-legs requires at least 1 trip.")
		}
	case "":
	default:
		errs = append(errs, fmt.Sprintf("flight_type %q is not recognized.", c.FlightType))
	}
	if len(c.Itinerary) != 0 && len(c.Trips) != 0 && len(c.Itinerary) != len(c.Trips) {
		errs = append(errs, "itinerary must have one entry per trip.")
	}

	for i := range c.Travellers {
		t := &c.Travellers[i]
		t.Name = strings.TrimSpace(t.Name)
		t.Salutation = strings.ToUpper(strings.TrimSpace(t.Salutation))
		if t.Name == "" {
			errs = append(errs, fmt.Sprintf("traveller[%d].name is required.", i))
		}
		if t.Salutation != "MR" && t.Salutation != "MS" {
			errs = append(errs, fmt.Sprintf("traveller[%d].salutation must be MR or MS.", i))
		}
	}

	for i := range c.Partners {
		p := &c.Partners[i]
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		p.FirstName = strings.TrimSpace(p.FirstName)
		p.LastName = strings.TrimSpace(p.LastName)
		if p.Type != "adult" && p.Type != "child" {
			errs = append(errs, fmt.Sprintf("travel_partner[%d].type must be adult or child.", i))
		}
		if p.FirstName == "" {
			errs = append(errs, fmt.Sprintf("travel_partner[%d].first_name is required.", i))
		}
		if p.LastName == "" {
			errs = append(errs, fmt.Sprintf("travel_partner[%d].last_name is required.", i))
		}
		if p.OwnSeat == nil {
			ownSeat := true
			p.OwnSeat = &ownSeat
		}
		if p.Type == "adult" {
			p.Salutation = strings.ToUpper(strings.TrimSpace(p.Salutation))
			if p.Salutation != "MR" && p.Salutation != "MS" {
				errs = append(errs, fmt.Sprintf("travel_partner[%d].salutation must be MR or MS.", i))
			}
		}
		if p.Type == "child" {
			p.DOB = strings.TrimSpace(p.DOB)
			switch {
			case p.DOB == "":
				errs = append(errs, fmt.Sprintf("travel_partner[%d].dob is required for child.", i))
			case !validDateMMDDYYYY(p.DOB):
				errs = append(errs, fmt.Sprintf("travel_partner[%d].dob must be MM/DD/YYYY.", i))
			}
		}
	}

	for i := range c.FlightNumbers {
		c.FlightNumbers[i] = NormalizeFlightNumber(c.FlightNumbers[i])
	}

	return errs
}

// Validate normalizes the criteria and folds any problems into a single
// ErrInvalidInput.
func (c *SearchCriteria) Validate() error {
	if errs := c.Normalize(); len(errs) > 0 {
		return eris.Wrap(ErrInvalidInput, strings.Join(errs, " "))
	}
	return nil
}
