// Package rangeguard flags routes that may exceed a selected vehicle's
// remaining driving range. It is a pure computation: no network calls,
// no state, just the inputs it is handed.
package rangeguard

import (
	"fmt"

	"github.com/alexlifshitz/teslanav/internal/fleet"
)

// Route distance above this fraction of the vehicle's reported range
// warrants a warning. Deliberately coarse: telemetry range is itself an
// estimate.
const warnFraction = 0.9

// Check compares the route's total distance against each selected
// vehicle's reported range and returns a warning naming the first
// vehicle, in selection order, whose range is too tight. It returns ""
// when there is no distance total, the distance is zero, or no
// selected vehicle has known telemetry.
func Check(totalDistanceKm *float64, selected []string, statusByVehicle map[string]fleet.VehicleStatus, vehicles []fleet.Vehicle) string {
	if totalDistanceKm == nil || *totalDistanceKm <= 0 {
		return ""
	}
	distance := *totalDistanceKm

	names := make(map[string]string, len(vehicles))
	for _, v := range vehicles {
		names[v.ID] = v.DisplayName
	}

	for _, id := range selected {
		status, ok := statusByVehicle[id]
		if !ok || status.BatteryRange <= 0 {
			continue
		}
		rangeKm := status.RangeKm()
		if distance <= rangeKm*warnFraction {
			continue
		}

		name := names[id]
		if name == "" {
			name = id
		}
		return fmt.Sprintf("%s may not have enough range: route is %.0f km, estimated range %.0f km",
			name, distance, rangeKm)
	}
	return ""
}
