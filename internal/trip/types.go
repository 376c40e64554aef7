// Package trip defines the itinerary data model shared across the
// interpreter, resolver, and dispatcher: stops, resolved routes, send
// outcomes, and the clock and schedule helpers that annotate them.
package trip

// StopType classifies how a stop's address was produced.
type StopType string

const (
	// StopSpecific is a concrete, geocodable address or place name.
	StopSpecific StopType = "specific"
	// StopSearch is a category query ("a Starbucks") that the resolver
	// must turn into a concrete place.
	StopSearch StopType = "search"
	// StopResolved marks a former search stop after the backend pinned
	// it to a concrete place.
	StopResolved StopType = "resolved"
)

// DefaultDwellMinutes is how long a visit is assumed to take when the
// user didn't say.
const DefaultDwellMinutes = 20

// Stop is one itinerary entry. A Stop is immutable except for the
// fields populated by resolution and optimization passes; its ID never
// changes across those passes.
type Stop struct {
	ID          string   `json:"id"`
	Address     string   `json:"address"`
	Label       string   `json:"label,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	StopType    StopType `json:"stopType,omitempty"`
	SearchQuery string   `json:"searchQuery,omitempty"`

	// Time window: "HH:MM" 24-hour strings, empty when unconstrained.
	OpenTime  string `json:"openTime,omitempty"`
	CloseTime string `json:"closeTime,omitempty"`

	DwellMinutes int `json:"dwellMinutes"`

	// Populated only after resolution.
	EstimatedArrival     string   `json:"estimatedArrival,omitempty"`
	DriveMinutesFromPrev *int     `json:"driveMinutesFromPrev,omitempty"`
	DistanceMeters       *int     `json:"distanceMeters,omitempty"`
	HasConflict          bool     `json:"hasConflict"`
	Latitude             *float64 `json:"latitude,omitempty"`
	Longitude            *float64 `json:"longitude,omitempty"`
}

// IsSearch reports whether the stop still needs place resolution.
func (s Stop) IsSearch() bool {
	return s.StopType == StopSearch
}

// DisplayName returns the label when present, the address otherwise.
func (s Stop) DisplayName() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Address
}

// RoutePreferences carries routing constraints extracted from the
// user's phrasing. Scenic implies avoiding highways; the interpreter
// applies that rule, not the resolver.
type RoutePreferences struct {
	Scenic          bool   `json:"scenic"`
	AvoidHighways   bool   `json:"avoidHighways"`
	AvoidTolls      bool   `json:"avoidTolls"`
	AvoidFerries    bool   `json:"avoidFerries"`
	PreferenceNotes string `json:"preferenceNotes,omitempty"`
}

// Any reports whether any preference flag is set.
func (p RoutePreferences) Any() bool {
	return p.Scenic || p.AvoidHighways || p.AvoidTolls || p.AvoidFerries
}

// Itinerary is the interpreter's output: the user's intended stop
// sequence before remote resolution. Stop order is significant.
type Itinerary struct {
	Origin      string           `json:"origin,omitempty"`
	Stops       []Stop           `json:"stops"`
	Preferences RoutePreferences `json:"preferences"`
	// Notes carries diagnostic text, e.g. "no destinations found".
	Notes string `json:"notes,omitempty"`
}

// ResolvedRoute is the resolver's output: the same identity set of
// stops, now time/distance-enriched. Totals are nil when resolution
// was skipped.
type ResolvedRoute struct {
	Stops             []Stop   `json:"stops"`
	TotalDriveMinutes *int     `json:"totalDriveMinutes,omitempty"`
	TotalDistanceKm   *float64 `json:"totalDistanceKm,omitempty"`
}

// SendOutcome records the result of one vehicle's dispatch or climate
// attempt. Write-once per cycle; cleared at the start of the next.
type SendOutcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Addresses returns the ordered address list for a navigation command.
// Stops without an address (unresolved search stops) are skipped.
func Addresses(stops []Stop) []string {
	out := make([]string, 0, len(stops))
	for _, s := range stops {
		if s.Address == "" {
			continue
		}
		out = append(out, s.Address)
	}
	return out
}

// IDSet returns the set of stop ids, used to verify that resolution
// and optimization preserve stop identity.
func IDSet(stops []Stop) map[string]struct{} {
	set := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		set[s.ID] = struct{}{}
	}
	return set
}

// SameIDSet reports whether two stop lists carry exactly the same ids,
// regardless of order.
func SameIDSet(a, b []Stop) bool {
	if len(a) != len(b) {
		return false
	}
	set := IDSet(a)
	for _, s := range b {
		if _, ok := set[s.ID]; !ok {
			return false
		}
	}
	return true
}
