// Package dispatch sends a planned route to one or more vehicles. Each
// vehicle is handled independently and concurrently: a failure on one
// car never blocks or fails the others.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alexlifshitz/teslanav/internal/fleet"
	"github.com/alexlifshitz/teslanav/internal/trip"
)

// Commander is the subset of the fleet client dispatch needs.
type Commander interface {
	fleet.Waker
	Navigate(ctx context.Context, vehicleID string, addresses []string) error
}

// Dispatcher fans a route out to selected vehicles.
type Dispatcher struct {
	fleet  Commander
	logger *slog.Logger
}

func New(commander Commander, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{fleet: commander, logger: logger}
}

// Send pushes the route's stop addresses to every vehicle in
// vehicleIDs and reports a per-vehicle outcome keyed by vehicle id.
// Every id gets an entry. vehicles is the last-known fleet snapshot:
// it supplies display names for the outcome messages and the state
// that decides whether a wake is needed. The wake and navigate for one
// car are strictly ordered, while different cars proceed in parallel.
func (d *Dispatcher) Send(ctx context.Context, route trip.ResolvedRoute, vehicleIDs []string, vehicles []fleet.Vehicle) map[string]trip.SendOutcome {
	outcomes := make(map[string]trip.SendOutcome, len(vehicleIDs))
	if len(vehicleIDs) == 0 {
		return outcomes
	}

	byID := make(map[string]fleet.Vehicle, len(vehicles))
	for _, v := range vehicles {
		byID[v.ID] = v
	}

	addresses := trip.Addresses(route.Stops)
	if len(addresses) == 0 {
		for _, id := range vehicleIDs {
			outcomes[id] = trip.SendOutcome{Message: displayName(byID[id], id) + ": no routable stops"}
		}
		return outcomes
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range vehicleIDs {
		v, ok := byID[id]
		if !ok {
			// Unknown state; sendOne treats it as not online.
			v = fleet.Vehicle{ID: id}
		}
		wg.Add(1)
		go func(v fleet.Vehicle) {
			defer wg.Done()
			outcome := d.sendOne(ctx, v, addresses)
			mu.Lock()
			outcomes[v.ID] = outcome
			mu.Unlock()
		}(v)
	}
	wg.Wait()

	return outcomes
}

// sendOne wakes a sleeping car and sends it the route. The wake is
// best-effort: a wake error or exhausted wait never aborts the send,
// the navigation attempt still runs and reports its own failure if the
// car truly is unreachable.
func (d *Dispatcher) sendOne(ctx context.Context, v fleet.Vehicle, addresses []string) trip.SendOutcome {
	name := displayName(v, v.ID)

	if !v.IsOnline() {
		if _, err := d.fleet.Wake(ctx, v.ID); err != nil {
			d.logger.Warn("wake failed, attempting navigation anyway", "vehicle_id", v.ID, "error", err)
		} else if err := fleet.WaitOnline(ctx, d.fleet, v.ID); err != nil {
			d.logger.Warn("wake wait interrupted", "vehicle_id", v.ID, "error", err)
		}
	}

	if err := d.fleet.Navigate(ctx, v.ID, addresses); err != nil {
		d.logger.Warn("navigate failed", "vehicle_id", v.ID, "error", err)
		return trip.SendOutcome{Message: fmt.Sprintf("%s: navigation failed: %v", name, err)}
	}

	d.logger.Info("route sent", "vehicle_id", v.ID, "stops", len(addresses))
	return trip.SendOutcome{
		Success: true,
		Message: fmt.Sprintf("%s: %d stops sent to navigation", name, len(addresses)),
	}
}

// displayName falls back to the id for vehicles missing from the
// fleet snapshot.
func displayName(v fleet.Vehicle, id string) string {
	if v.DisplayName != "" {
		return v.DisplayName
	}
	return id
}
