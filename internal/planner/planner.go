// Package planner is the orchestration core: it owns the in-memory
// trip state for one user session and drives interpretation,
// resolution, optimization, dispatch, and climate activation. All
// mutations go through the planner; no other component touches its
// state.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alexlifshitz/teslanav/internal/climate"
	"github.com/alexlifshitz/teslanav/internal/events"
	"github.com/alexlifshitz/teslanav/internal/fleet"
	"github.com/alexlifshitz/teslanav/internal/interpret"
	"github.com/alexlifshitz/teslanav/internal/llm"
	"github.com/alexlifshitz/teslanav/internal/rangeguard"
	"github.com/alexlifshitz/teslanav/internal/route"
	"github.com/alexlifshitz/teslanav/internal/trip"
)

// Interpreter parses prompts into itineraries.
type Interpreter interface {
	Interpret(ctx context.Context, prompt string, tc interpret.Context) (trip.Itinerary, error)
}

// Resolver enriches itineraries via the remote resolution service.
type Resolver interface {
	Resolve(ctx context.Context, stops []trip.Stop, origin string, prefs trip.RoutePreferences) (*trip.ResolvedRoute, error)
	OptimizeOrder(ctx context.Context, stops []trip.Stop, origin string) ([]trip.Stop, error)
}

// Dispatcher sends routes to vehicles. vehicles is the last-known
// fleet snapshot, used for display names and wake decisions.
type Dispatcher interface {
	Send(ctx context.Context, route trip.ResolvedRoute, vehicleIDs []string, vehicles []fleet.Vehicle) map[string]trip.SendOutcome
}

// ClimateAdvisor preconditions vehicle cabins.
type ClimateAdvisor interface {
	Activate(ctx context.Context, vehicleIDs []string) climate.Result
}

// FleetReader lists vehicles and reads telemetry.
type FleetReader interface {
	Vehicles(ctx context.Context) ([]fleet.Vehicle, error)
	VehicleData(ctx context.Context, vehicleID string) (fleet.VehicleStatus, error)
}

// ContextProvider supplies the contextual hints folded into the
// interpretation prompt. Providers are optional and best-effort: a
// failing provider degrades to an empty block, never a failed plan.
type ContextProvider interface {
	PromptContext(ctx context.Context) (interpret.Context, error)
}

// Planner owns one session's trip state.
type Planner struct {
	interpreter Interpreter
	resolver    Resolver
	dispatcher  Dispatcher
	climate     ClimateAdvisor
	fleet       FleetReader
	context     ContextProvider
	bus         *events.Bus
	logger      *slog.Logger

	mu sync.Mutex
	st state
}

// state is everything Snapshot exposes. Guarded by Planner.mu.
type state struct {
	Prompt            string
	Origin            string
	Stops             []trip.Stop
	Preferences       trip.RoutePreferences
	TotalDriveMinutes *int
	TotalDistanceKm   *float64
	Notes             string
	Notice            string // parse/resolve error surface, one at a time
	RangeWarning      string

	Vehicles        []fleet.Vehicle
	StatusByVehicle map[string]fleet.VehicleStatus
	Selected        []string

	SendOutcomes    map[string]trip.SendOutcome
	ClimateOutcomes map[string]trip.SendOutcome

	Parsing     bool
	Resolving   bool
	Optimizing  bool
	Sending     bool
	ClimateBusy bool
}

func New(interpreter Interpreter, resolver Resolver, dispatcher Dispatcher, advisor ClimateAdvisor, fleetReader FleetReader, provider ContextProvider, bus *events.Bus, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		interpreter: interpreter,
		resolver:    resolver,
		dispatcher:  dispatcher,
		climate:     advisor,
		fleet:       fleetReader,
		context:     provider,
		bus:         bus,
		logger:      logger,
		st: state{
			StatusByVehicle: map[string]fleet.VehicleStatus{},
			SendOutcomes:    map[string]trip.SendOutcome{},
			ClimateOutcomes: map[string]trip.SendOutcome{},
		},
	}
}

// PlanFromPrompt interprets the prompt and, when the itinerary calls
// for it, resolves the route. Stale results of the previous plan
// (totals, outcomes, warnings, notices) are cleared before anything
// starts, so a superseded run can never leak into this one. A
// resolution failure keeps the parsed stops visible with totals
// cleared.
func (p *Planner) PlanFromPrompt(ctx context.Context, prompt string) error {
	p.mu.Lock()
	p.st.Prompt = prompt
	p.st.Notice = ""
	p.st.RangeWarning = ""
	p.st.TotalDriveMinutes = nil
	p.st.TotalDistanceKm = nil
	p.st.SendOutcomes = map[string]trip.SendOutcome{}
	p.st.ClimateOutcomes = map[string]trip.SendOutcome{}
	p.st.Parsing = true
	p.mu.Unlock()

	p.bus.Publish(events.Event{
		Source: events.SourcePlanner,
		Kind:   events.KindPromptReceived,
		Data:   map[string]any{"prompt_len": len(prompt)},
	})

	it, err := p.interpreter.Interpret(ctx, prompt, p.promptContext(ctx))
	if err != nil {
		p.setNotice(parseNotice(err), &p.st.Parsing)
		p.bus.Publish(events.Event{
			Source: events.SourcePlanner,
			Kind:   events.KindParseFailed,
			Data:   map[string]any{"error": err.Error()},
		})
		return err
	}

	p.mu.Lock()
	p.st.Origin = it.Origin
	p.st.Stops = it.Stops
	p.st.Preferences = it.Preferences
	p.st.Notes = it.Notes
	p.st.Parsing = false
	p.mu.Unlock()

	p.bus.Publish(events.Event{
		Source: events.SourcePlanner,
		Kind:   events.KindItineraryParsed,
		Data:   map[string]any{"stops": len(it.Stops), "origin": it.Origin},
	})

	if !route.NeedsResolution(it) {
		p.recomputeRangeWarning()
		return nil
	}
	return p.resolve(ctx, it)
}

func (p *Planner) resolve(ctx context.Context, it trip.Itinerary) error {
	p.mu.Lock()
	p.st.Resolving = true
	p.mu.Unlock()

	resolved, err := p.resolver.Resolve(ctx, it.Stops, it.Origin, it.Preferences)
	if err != nil {
		// Parsed stops stay visible; only the enrichment failed.
		p.setNotice(fmt.Sprintf("route resolution failed: %v", err), &p.st.Resolving)
		p.bus.Publish(events.Event{
			Source: events.SourcePlanner,
			Kind:   events.KindResolveFailed,
			Data:   map[string]any{"error": err.Error()},
		})
		return err
	}

	trip.AnnotateSchedule(resolved.Stops, trip.DefaultDepartureMinutes)

	p.mu.Lock()
	p.st.Stops = resolved.Stops
	p.st.TotalDriveMinutes = resolved.TotalDriveMinutes
	p.st.TotalDistanceKm = resolved.TotalDistanceKm
	p.st.Resolving = false
	p.mu.Unlock()

	data := map[string]any{"stops": len(resolved.Stops)}
	if resolved.TotalDriveMinutes != nil {
		data["total_minutes"] = *resolved.TotalDriveMinutes
	}
	if resolved.TotalDistanceKm != nil {
		data["total_km"] = *resolved.TotalDistanceKm
	}
	p.bus.Publish(events.Event{
		Source: events.SourcePlanner,
		Kind:   events.KindRouteResolved,
		Data:   data,
	})

	p.recomputeRangeWarning()
	return nil
}

// OptimizeOrder asks the resolution service to reorder the current
// stops for minimal drive time. Fewer than three stops is a no-op at
// the client layer and leaves state untouched.
func (p *Planner) OptimizeOrder(ctx context.Context) error {
	p.mu.Lock()
	stops := append([]trip.Stop(nil), p.st.Stops...)
	origin := p.st.Origin
	p.st.Notice = ""
	p.st.Optimizing = true
	p.mu.Unlock()

	reordered, err := p.resolver.OptimizeOrder(ctx, stops, origin)
	if err != nil {
		p.setNotice(fmt.Sprintf("stop order optimization failed: %v", err), &p.st.Optimizing)
		return err
	}

	p.mu.Lock()
	p.st.Stops = reordered
	p.st.Optimizing = false
	p.mu.Unlock()

	p.bus.Publish(events.Event{
		Source: events.SourcePlanner,
		Kind:   events.KindOrderOptimized,
		Data:   map[string]any{"stops": len(reordered)},
	})

	p.recomputeRangeWarning()
	return nil
}

// RefreshVehicles reloads the fleet listing.
func (p *Planner) RefreshVehicles(ctx context.Context) ([]fleet.Vehicle, error) {
	vehicles, err := p.fleet.Vehicles(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.st.Vehicles = vehicles
	p.mu.Unlock()
	return vehicles, nil
}

// RefreshStatus reads one vehicle's telemetry and recomputes the range
// warning with the fresh numbers.
func (p *Planner) RefreshStatus(ctx context.Context, vehicleID string) (fleet.VehicleStatus, error) {
	status, err := p.fleet.VehicleData(ctx, vehicleID)
	if err != nil {
		return fleet.VehicleStatus{}, err
	}
	p.mu.Lock()
	p.st.StatusByVehicle[vehicleID] = status
	p.mu.Unlock()
	p.recomputeRangeWarning()
	return status, nil
}

// SelectVehicles replaces the dispatch target set.
func (p *Planner) SelectVehicles(ids []string) {
	p.mu.Lock()
	p.st.Selected = append([]string(nil), ids...)
	p.mu.Unlock()
	p.recomputeRangeWarning()
}

// Dispatch sends the current stops to the selected vehicles and
// records per-vehicle outcomes. It refuses to run with no stops or no
// selection rather than reporting a vacuous success.
func (p *Planner) Dispatch(ctx context.Context) (map[string]trip.SendOutcome, error) {
	p.mu.Lock()
	if len(p.st.Stops) == 0 || len(p.st.Selected) == 0 {
		p.mu.Unlock()
		return nil, errors.New("nothing to dispatch: need stops and at least one selected vehicle")
	}
	resolved := trip.ResolvedRoute{
		Stops:             append([]trip.Stop(nil), p.st.Stops...),
		TotalDriveMinutes: p.st.TotalDriveMinutes,
		TotalDistanceKm:   p.st.TotalDistanceKm,
	}
	targets := append([]string(nil), p.st.Selected...)
	vehicles := append([]fleet.Vehicle(nil), p.st.Vehicles...)
	p.st.SendOutcomes = map[string]trip.SendOutcome{}
	p.st.Sending = true
	p.mu.Unlock()

	p.bus.Publish(events.Event{
		Source: events.SourceDispatch,
		Kind:   events.KindDispatchStart,
		Data:   map[string]any{"vehicles": len(targets), "stops": len(resolved.Stops)},
	})

	outcomes := p.dispatcher.Send(ctx, resolved, targets, vehicles)

	p.mu.Lock()
	p.st.SendOutcomes = outcomes
	p.st.Sending = false
	p.mu.Unlock()

	succeeded := 0
	for id, o := range outcomes {
		kind := events.KindVehicleFailed
		if o.Success {
			kind = events.KindVehicleSent
			succeeded++
		}
		p.bus.Publish(events.Event{
			Source: events.SourceDispatch,
			Kind:   kind,
			Data:   map[string]any{"vehicle_id": id, "message": o.Message},
		})
	}
	p.bus.Publish(events.Event{
		Source: events.SourceDispatch,
		Kind:   events.KindDispatchComplete,
		Data:   map[string]any{"vehicles": len(targets), "succeeded": succeeded},
	})

	return outcomes, nil
}

// ActivateClimate preconditions the selected vehicles and records
// per-vehicle outcomes.
func (p *Planner) ActivateClimate(ctx context.Context) (climate.Result, error) {
	p.mu.Lock()
	if len(p.st.Selected) == 0 {
		p.mu.Unlock()
		return climate.Result{}, errors.New("no vehicles selected")
	}
	targets := append([]string(nil), p.st.Selected...)
	p.st.ClimateOutcomes = map[string]trip.SendOutcome{}
	p.st.ClimateBusy = true
	p.mu.Unlock()

	res := p.climate.Activate(ctx, targets)

	p.mu.Lock()
	p.st.ClimateOutcomes = res.Outcomes
	p.st.ClimateBusy = false
	p.mu.Unlock()

	for id, o := range res.Outcomes {
		kind := events.KindClimateFailed
		if o.Success {
			kind = events.KindClimateSet
		}
		p.bus.Publish(events.Event{
			Source: events.SourceClimate,
			Kind:   kind,
			Data:   map[string]any{"vehicle_id": id, "message": o.Message},
		})
	}

	return res, nil
}

// Snapshot returns a deep-enough copy of the session state for
// rendering. Maps and slices are copied so callers can't mutate
// planner state through the snapshot.
func (p *Planner) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Snapshot{
		Prompt:            p.st.Prompt,
		Origin:            p.st.Origin,
		Stops:             append([]trip.Stop(nil), p.st.Stops...),
		Preferences:       p.st.Preferences,
		TotalDriveMinutes: p.st.TotalDriveMinutes,
		TotalDistanceKm:   p.st.TotalDistanceKm,
		Notes:             p.st.Notes,
		Notice:            p.st.Notice,
		RangeWarning:      p.st.RangeWarning,
		Vehicles:          append([]fleet.Vehicle(nil), p.st.Vehicles...),
		StatusByVehicle:   copyStatusMap(p.st.StatusByVehicle),
		Selected:          append([]string(nil), p.st.Selected...),
		SendOutcomes:      copyOutcomeMap(p.st.SendOutcomes),
		ClimateOutcomes:   copyOutcomeMap(p.st.ClimateOutcomes),
		Parsing:           p.st.Parsing,
		Resolving:         p.st.Resolving,
		Optimizing:        p.st.Optimizing,
		Sending:           p.st.Sending,
		ClimateBusy:       p.st.ClimateBusy,
	}
}

// Snapshot is the read-only view of a session.
type Snapshot struct {
	Prompt            string                        `json:"prompt"`
	Origin            string                        `json:"origin,omitempty"`
	Stops             []trip.Stop                   `json:"stops"`
	Preferences       trip.RoutePreferences         `json:"preferences"`
	TotalDriveMinutes *int                          `json:"totalDriveMinutes,omitempty"`
	TotalDistanceKm   *float64                      `json:"totalDistanceKm,omitempty"`
	Notes             string                        `json:"notes,omitempty"`
	Notice            string                        `json:"notice,omitempty"`
	RangeWarning      string                        `json:"rangeWarning,omitempty"`
	Vehicles          []fleet.Vehicle               `json:"vehicles"`
	StatusByVehicle   map[string]fleet.VehicleStatus `json:"statusByVehicle"`
	Selected          []string                      `json:"selected"`
	SendOutcomes      map[string]trip.SendOutcome   `json:"sendOutcomes"`
	ClimateOutcomes   map[string]trip.SendOutcome   `json:"climateOutcomes"`
	Parsing           bool                          `json:"parsing"`
	Resolving         bool                          `json:"resolving"`
	Optimizing        bool                          `json:"optimizing"`
	Sending           bool                          `json:"sending"`
	ClimateBusy       bool                          `json:"climateBusy"`
}

// promptContext gathers contextual hints, best-effort.
func (p *Planner) promptContext(ctx context.Context) interpret.Context {
	if p.context == nil {
		return interpret.Context{}
	}
	tc, err := p.context.PromptContext(ctx)
	if err != nil {
		p.logger.Warn("prompt context unavailable", "error", err)
		return interpret.Context{}
	}
	return tc
}

// setNotice records a user-facing failure message and clears the
// given in-progress flag, under one lock acquisition.
func (p *Planner) setNotice(notice string, flag *bool) {
	p.mu.Lock()
	p.st.Notice = notice
	*flag = false
	p.mu.Unlock()
}

// recomputeRangeWarning re-runs the range check against current stops,
// selection, and telemetry. Called whenever any of those change.
func (p *Planner) recomputeRangeWarning() {
	p.mu.Lock()
	warning := rangeguard.Check(p.st.TotalDistanceKm, p.st.Selected, p.st.StatusByVehicle, p.st.Vehicles)
	changed := warning != p.st.RangeWarning
	p.st.RangeWarning = warning
	p.mu.Unlock()

	if changed && warning != "" {
		p.bus.Publish(events.Event{
			Source: events.SourcePlanner,
			Kind:   events.KindRangeWarning,
			Data:   map[string]any{"warning": warning},
		})
	}
}

// parseNotice renders an interpretation failure for the notice
// surface, mapping the known sentinels to friendlier wording.
func parseNotice(err error) string {
	switch {
	case errors.Is(err, llm.ErrNoCredential):
		return "language model credential is not configured"
	case errors.Is(err, llm.ErrEmptyResponse):
		return "language model returned an empty reply; try again"
	case errors.Is(err, interpret.ErrMalformedResponse):
		return "could not understand the reply from the language model; try rephrasing"
	default:
		return fmt.Sprintf("trip interpretation failed: %v", err)
	}
}

func copyStatusMap(m map[string]fleet.VehicleStatus) map[string]fleet.VehicleStatus {
	out := make(map[string]fleet.VehicleStatus, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyOutcomeMap(m map[string]trip.SendOutcome) map[string]trip.SendOutcome {
	out := make(map[string]trip.SendOutcome, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
