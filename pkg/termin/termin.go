// Package termin contains the core domain types for the appointment
// notification service.
package termin

import "time"

// Status classifies the outcome of checking a single location.
type Status string

const (
	// StatusAvailable means bookable calendar cells were found.
	StatusAvailable Status = "available"
	// StatusNoSlots means the location has no open appointments.
	StatusNoSlots Status = "no_slots"
	// StatusHTTPError means the final response had a non-200 status.
	StatusHTTPError Status = "http_error"
	// StatusParseError means the page structure could not be interpreted.
	StatusParseError Status = "parse_error"
	// StatusNetworkError means the request failed at the transport level.
	StatusNetworkError Status = "network_error"
)

// URLTemplate selects which booking URL format a location uses.
type URLTemplate int

const (
	// TemplateStandard is the dienstleisterlist query format used by
	// almost every location.
	TemplateStandard URLTemplate = iota
	// TemplateSpecial is the legacy dienstleister format. Only
	// Treptow-Köpenick uses it; the difference comes from the site
	// itself and is not derivable from the location ID.
	TemplateSpecial
)

// Location is an immutable registry entry for a VHS office.
type Location struct {
	ID       string
	Name     string
	Template URLTemplate
}

// PollOutcome records the result of checking one location in one cycle.
type PollOutcome struct {
	CheckedAt    time.Time `json:"checked_at"`
	LocationID   string    `json:"location_id"`
	LocationName string    `json:"location_name"`
	Status       Status    `json:"status"`
	ErrorDetail  string    `json:"error_detail,omitempty"`
	SlotCount    int       `json:"slot_count"`
}

// OverallStatus summarizes a whole poll cycle.
type OverallStatus string

const (
	// OverallSuccess means every location was checked without error.
	OverallSuccess OverallStatus = "success"
	// OverallPartialSuccess means at least one location failed; the
	// remaining outcomes are still valid.
	OverallPartialSuccess OverallStatus = "partial_success"
)

// AggregateResult is the outcome of one complete poll cycle, with exactly
// one entry per registered location in registry order.
type AggregateResult struct {
	CheckedAt time.Time     `json:"checked_at"`
	Outcomes  []PollOutcome `json:"outcomes"`
	Overall   OverallStatus `json:"overall_status"`
}

// AvailableSet returns the IDs of locations with open slots this cycle.
func (a *AggregateResult) AvailableSet() map[string]bool {
	set := make(map[string]bool)
	for _, o := range a.Outcomes {
		if o.Status == StatusAvailable {
			set[o.LocationID] = true
		}
	}
	return set
}

// Available returns the outcomes with open slots, in registry order.
func (a *AggregateResult) Available() []PollOutcome {
	var out []PollOutcome
	for _, o := range a.Outcomes {
		if o.Status == StatusAvailable {
			out = append(out, o)
		}
	}
	return out
}

// Failed returns the outcomes that could not be checked, in registry order.
func (a *AggregateResult) Failed() []PollOutcome {
	var out []PollOutcome
	for _, o := range a.Outcomes {
		switch o.Status {
		case StatusNetworkError, StatusHTTPError, StatusParseError:
			out = append(out, o)
		case StatusAvailable, StatusNoSlots:
		}
	}
	return out
}

// Locations returns the fixed registry of monitored VHS offices. The order
// is significant for deterministic output; the set never changes at
// runtime.
func Locations() []Location {
	return []Location{
		{ID: "122671", Name: "Volkshochschule Treptow-Köpenick", Template: TemplateSpecial},
		{ID: "325853", Name: "Volkshochschule City West", Template: TemplateStandard},
		{ID: "351438", Name: "Volkshochschule Friedrichshain-Kreuzberg (Standort Friedrichshain)", Template: TemplateStandard},
		{ID: "351444", Name: "Volkshochschule Friedrichshain-Kreuzberg (Standort Kreuzberg)", Template: TemplateStandard},
		{ID: "122626", Name: "Volkshochschule Lichtenberg", Template: TemplateStandard},
		{ID: "122628", Name: "Volkshochschule Marzahn-Hellersdorf", Template: TemplateStandard},
		{ID: "351636", Name: "Volkshochschule Mitte - Antonstraße", Template: TemplateStandard},
		{ID: "122659", Name: "Volkshochschule Neukölln", Template: TemplateStandard},
		{ID: "122664", Name: "Volkshochschule Reinickendorf", Template: TemplateStandard},
		{ID: "122666", Name: "Volkshochschule Spandau", Template: TemplateStandard},
		{ID: "325987", Name: "Volkshochschule Steglitz-Zehlendorf - Goethestraße", Template: TemplateStandard},
		{ID: "351435", Name: "Volkshochschule Tempelhof-Schöneberg", Template: TemplateStandard},
	}
}

// BookingURL is the public page subscribers use to book an appointment.
const BookingURL = "https://service.berlin.de/dienstleistung/351180/"
