// Package climate preconditions vehicle cabins. It picks a target
// temperature from interior telemetry when available, falling back to
// exterior telemetry and then to ambient weather at the car's
// location, and skips cars whose cabin is already comfortable.
package climate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alexlifshitz/teslanav/internal/fleet"
	"github.com/alexlifshitz/teslanav/internal/trip"
	"github.com/alexlifshitz/teslanav/internal/weather"
)

// Controller is the subset of the fleet client the advisor needs.
type Controller interface {
	VehicleData(ctx context.Context, vehicleID string) (fleet.VehicleStatus, error)
	Climate(ctx context.Context, vehicleID string, on bool, targetTempC float64) error
}

// WeatherSource supplies ambient conditions for a coordinate.
type WeatherSource interface {
	CurrentConditions(ctx context.Context, latitude, longitude float64) (weather.Current, error)
}

// Result aggregates one activation pass across the selected vehicles.
// Success is true when at least one vehicle's command succeeded or was
// comfortably skipped.
type Result struct {
	Success  bool
	Outcomes map[string]trip.SendOutcome
}

// Advisor derives per-vehicle climate targets and issues the commands.
type Advisor struct {
	fleet   Controller
	weather WeatherSource
	logger  *slog.Logger
}

func New(fleet Controller, weather WeatherSource, logger *slog.Logger) *Advisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Advisor{fleet: fleet, weather: weather, logger: logger}
}

// Activate preconditions every selected vehicle. Vehicles proceed in
// parallel; one car's failure never blocks another's command.
func (a *Advisor) Activate(ctx context.Context, vehicleIDs []string) Result {
	res := Result{Outcomes: make(map[string]trip.SendOutcome, len(vehicleIDs))}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range vehicleIDs {
		wg.Add(1)
		go func(vehicleID string) {
			defer wg.Done()
			outcome := a.activateOne(ctx, vehicleID)
			mu.Lock()
			res.Outcomes[vehicleID] = outcome
			if outcome.Success {
				res.Success = true
			}
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	return res
}

func (a *Advisor) activateOne(ctx context.Context, vehicleID string) trip.SendOutcome {
	// VehicleData wakes a sleeping car itself, so no separate wake pass.
	status, err := a.fleet.VehicleData(ctx, vehicleID)
	if err != nil {
		a.logger.Warn("telemetry unavailable for climate", "vehicle_id", vehicleID, "error", err)
		return trip.SendOutcome{Message: fmt.Sprintf("telemetry unavailable: %v", err)}
	}

	temp, source := a.cabinTemp(ctx, status)

	target, needed := TargetTemp(temp)
	if !needed {
		return trip.SendOutcome{
			Success: true,
			Message: fmt.Sprintf("cabin already comfortable at %.1f°C", temp),
		}
	}

	if err := a.fleet.Climate(ctx, vehicleID, true, target); err != nil {
		a.logger.Warn("climate command failed", "vehicle_id", vehicleID, "error", err)
		return trip.SendOutcome{Message: fmt.Sprintf("climate command failed: %v", err)}
	}

	a.logger.Info("climate on", "vehicle_id", vehicleID,
		"target_c", target, "measured_c", temp, "source", source)
	return trip.SendOutcome{
		Success: true,
		Message: fmt.Sprintf("climate set to %.1f°C (%s %.1f°C)", target, source, temp),
	}
}

// cabinTemp picks the temperature the banding runs on: interior
// telemetry first, then exterior, then ambient weather at the car's
// coordinates. With nothing known it assumes a cold cabin so the
// command still goes out.
func (a *Advisor) cabinTemp(ctx context.Context, status fleet.VehicleStatus) (float64, string) {
	if status.InteriorTemp != nil {
		return *status.InteriorTemp, "interior"
	}
	if status.ExteriorTemp != nil {
		return *status.ExteriorTemp, "exterior"
	}
	if a.weather != nil && status.Latitude != nil && status.Longitude != nil {
		if cur, err := a.weather.CurrentConditions(ctx, *status.Latitude, *status.Longitude); err == nil {
			return cur.ApparentTempC, "outside"
		} else {
			a.logger.Debug("weather lookup failed", "error", err)
		}
	}
	return 10, "assumed"
}
