package interpret

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/alexlifshitz/teslanav/internal/trip"
)

// ErrMalformedResponse is returned when the model's reply cannot be
// decoded as an itinerary at all. Individual bad fields never trigger
// it; they degrade to the defaults below instead.
var ErrMalformedResponse = errors.New("malformed language-model response")

// Per-field defaults applied when the model omits or mangles a field.
// One malformed field must never invalidate an otherwise valid
// itinerary.
const (
	defaultStopType     = trip.StopSpecific
	defaultDwellMinutes = trip.DefaultDwellMinutes
	defaultHasConflict  = false
)

// flexString decodes a JSON string, number, or bool into its string
// form. Anything else (null, object, array) decodes to "".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(strconv.FormatFloat(n, 'f', -1, 64))
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexString(strconv.FormatBool(b))
		return nil
	}
	*f = ""
	return nil
}

// flexInt decodes a JSON number or numeric string. Anything else
// decodes to nil.
type flexInt struct {
	value *int
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		v := int(n)
		f.value = &v
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			f.value = &v
		}
	}
	return nil
}

// flexBool decodes a JSON bool or the strings "true"/"false". Anything
// else decodes to false.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexBool(strings.EqualFold(strings.TrimSpace(s), "true"))
		return nil
	}
	*f = false
	return nil
}

// rawStop is the wire shape of a stop as the model actually emits it:
// every field optional, identifiers sometimes numeric, booleans
// sometimes quoted.
type rawStop struct {
	ID           flexString `json:"id"`
	Address      flexString `json:"address"`
	Label        flexString `json:"label"`
	Notes        flexString `json:"notes"`
	StopType     flexString `json:"stopType"`
	SearchQuery  flexString `json:"searchQuery"`
	OpenTime     flexString `json:"openTime"`
	CloseTime    flexString `json:"closeTime"`
	DwellMinutes flexInt    `json:"dwellMinutes"`
	HasConflict  flexBool   `json:"hasConflict"`
}

type rawPreferences struct {
	Scenic          flexBool   `json:"scenic"`
	AvoidHighways   flexBool   `json:"avoidHighways"`
	AvoidTolls      flexBool   `json:"avoidTolls"`
	AvoidFerries    flexBool   `json:"avoidFerries"`
	PreferenceNotes flexString `json:"preferenceNotes"`
}

type rawItinerary struct {
	Origin      flexString     `json:"origin"`
	Stops       []rawStop      `json:"stops"`
	Preferences rawPreferences `json:"preferences"`
	Notes       flexString     `json:"notes"`
}

// stripFences removes a markdown code-fence wrapper if the model added
// one despite the instruction not to.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json\n")
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```\n")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// decodeItinerary turns the model's text reply into a normalized
// itinerary. The decode is total over valid JSON: every missing or
// bad field takes its named default, and a missing or unusable stop id
// is replaced with a locally generated one.
func decodeItinerary(content string) (trip.Itinerary, error) {
	content = stripFences(content)

	var raw rawItinerary
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return trip.Itinerary{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	it := trip.Itinerary{
		Origin: string(raw.Origin),
		Notes:  string(raw.Notes),
		Preferences: trip.RoutePreferences{
			Scenic:          bool(raw.Preferences.Scenic),
			AvoidHighways:   bool(raw.Preferences.AvoidHighways),
			AvoidTolls:      bool(raw.Preferences.AvoidTolls),
			AvoidFerries:    bool(raw.Preferences.AvoidFerries),
			PreferenceNotes: string(raw.Preferences.PreferenceNotes),
		},
	}

	// Domain rule: a scenic route avoids highways. Applied here at the
	// interpretation stage; the resolver never re-derives it.
	if it.Preferences.Scenic {
		it.Preferences.AvoidHighways = true
	}

	seen := make(map[string]struct{}, len(raw.Stops))
	for _, rs := range raw.Stops {
		it.Stops = append(it.Stops, normalizeStop(rs, seen))
	}

	return it, nil
}

// normalizeStop applies the defaulting rules to one raw stop. seen
// tracks ids already assigned, so duplicate model-supplied ids also
// get regenerated rather than causing two stops to collide.
func normalizeStop(rs rawStop, seen map[string]struct{}) trip.Stop {
	id := strings.TrimSpace(string(rs.ID))
	if id == "" {
		id = uuid.NewString()
	}
	if _, dup := seen[id]; dup {
		id = uuid.NewString()
	}
	seen[id] = struct{}{}

	s := trip.Stop{
		ID:          id,
		Address:     strings.TrimSpace(string(rs.Address)),
		Label:       strings.TrimSpace(string(rs.Label)),
		Notes:       string(rs.Notes),
		SearchQuery: strings.TrimSpace(string(rs.SearchQuery)),
		OpenTime:    normalizeClock(string(rs.OpenTime)),
		CloseTime:   normalizeClock(string(rs.CloseTime)),
		HasConflict: defaultHasConflict,
	}

	switch trip.StopType(strings.ToLower(strings.TrimSpace(string(rs.StopType)))) {
	case trip.StopSearch:
		s.StopType = trip.StopSearch
	case trip.StopSpecific:
		s.StopType = trip.StopSpecific
	default:
		// Unknown or missing type: a search query implies a search stop.
		if s.SearchQuery != "" {
			s.StopType = trip.StopSearch
		} else {
			s.StopType = defaultStopType
		}
	}

	// A search stop with no query can't be resolved; degrade it to a
	// specific stop so the address (or label) is used as-is.
	if s.StopType == trip.StopSearch && s.SearchQuery == "" {
		s.StopType = defaultStopType
	}

	if rs.DwellMinutes.value != nil && *rs.DwellMinutes.value >= 0 {
		s.DwellMinutes = *rs.DwellMinutes.value
	} else {
		s.DwellMinutes = defaultDwellMinutes
	}

	return s
}

// normalizeClock keeps a time-window string only when it parses as
// "HH:MM"; anything else degrades to "no constraint".
func normalizeClock(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if _, err := trip.ClockToMinutes(t); err != nil {
		return ""
	}
	return t
}
