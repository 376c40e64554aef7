package rangeguard

import (
	"strings"
	"testing"

	"github.com/alexlifshitz/teslanav/internal/fleet"
)

func km(v float64) *float64 { return &v }

var testVehicles = []fleet.Vehicle{
	{ID: "a", DisplayName: "Rocket"},
	{ID: "b", DisplayName: "Blue"},
}

func TestCheckFiresAboveNinetyPercent(t *testing.T) {
	// 300 miles is about 483 km; 440 km exceeds 90% of that.
	status := map[string]fleet.VehicleStatus{
		"a": {BatteryRange: 300},
	}

	warning := Check(km(440), []string{"a"}, status, testVehicles)
	if warning == "" {
		t.Fatal("expected a warning")
	}
	if !strings.Contains(warning, "Rocket") {
		t.Errorf("warning should name the vehicle: %q", warning)
	}
	if !strings.Contains(warning, "440") {
		t.Errorf("warning should show the route distance: %q", warning)
	}
}

func TestCheckQuietWithinRange(t *testing.T) {
	status := map[string]fleet.VehicleStatus{
		"a": {BatteryRange: 300},
	}
	if w := Check(km(400), []string{"a"}, status, testVehicles); w != "" {
		t.Errorf("400 km against 483 km range should not warn: %q", w)
	}
}

func TestCheckEmptyInputs(t *testing.T) {
	status := map[string]fleet.VehicleStatus{"a": {BatteryRange: 100}}

	if w := Check(nil, []string{"a"}, status, testVehicles); w != "" {
		t.Errorf("nil distance: %q", w)
	}
	if w := Check(km(0), []string{"a"}, status, testVehicles); w != "" {
		t.Errorf("zero distance: %q", w)
	}
	if w := Check(km(500), []string{"a"}, nil, testVehicles); w != "" {
		t.Errorf("no telemetry: %q", w)
	}
	if w := Check(km(500), nil, status, testVehicles); w != "" {
		t.Errorf("no selection: %q", w)
	}
}

func TestCheckReportsFirstViolatorOnly(t *testing.T) {
	status := map[string]fleet.VehicleStatus{
		"a": {BatteryRange: 100},
		"b": {BatteryRange: 100},
	}

	warning := Check(km(500), []string{"b", "a"}, status, testVehicles)
	if !strings.Contains(warning, "Blue") {
		t.Errorf("first selected violator should be reported: %q", warning)
	}
	if strings.Contains(warning, "Rocket") {
		t.Errorf("only one vehicle should be named: %q", warning)
	}
}

func TestCheckIsPure(t *testing.T) {
	status := map[string]fleet.VehicleStatus{"a": {BatteryRange: 100}}
	first := Check(km(500), []string{"a"}, status, testVehicles)
	second := Check(km(500), []string{"a"}, status, testVehicles)
	if first != second {
		t.Errorf("identical inputs gave %q then %q", first, second)
	}
}

func TestCheckSkipsUnknownVehicles(t *testing.T) {
	status := map[string]fleet.VehicleStatus{
		"b": {BatteryRange: 100},
	}
	warning := Check(km(500), []string{"a", "b"}, status, testVehicles)
	if !strings.Contains(warning, "Blue") {
		t.Errorf("vehicle without telemetry should be skipped: %q", warning)
	}
}
