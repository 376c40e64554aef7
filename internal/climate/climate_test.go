package climate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/alexlifshitz/teslanav/internal/fleet"
	"github.com/alexlifshitz/teslanav/internal/weather"
)

func TestTargetTempBanding(t *testing.T) {
	tests := []struct {
		temp   float64
		target float64
		ok     bool
	}{
		{-5, 23, true},
		{4.9, 23, true},
		{5, 22, true},
		{11.9, 22, true},
		{12, 21.5, true},
		{18.9, 21.5, true},
		{19, 0, false}, // comfort band, lower boundary inclusive
		{21, 0, false},
		{24, 0, false}, // upper boundary inclusive
		{24.1, 20.5, true},
		{28, 20.5, true},
		{30, 20, true},
		{33, 20, true},
		{33.1, 19, true},
		{45, 19, true},
	}
	for _, tt := range tests {
		target, ok := TargetTemp(tt.temp)
		if ok != tt.ok || target != tt.target {
			t.Errorf("TargetTemp(%.1f) = (%.1f, %v), want (%.1f, %v)",
				tt.temp, target, ok, tt.target, tt.ok)
		}
	}
}

func TestTargetTempMonotonic(t *testing.T) {
	prev := 100.0
	for temp := -20.0; temp <= 50; temp += 0.5 {
		target, ok := TargetTemp(temp)
		if !ok {
			continue
		}
		if target > prev {
			t.Fatalf("target rose from %.1f to %.1f at %.1f°C", prev, target, temp)
		}
		prev = target
	}
}

func TestHotCabinTargetsAtMostTwenty(t *testing.T) {
	target, ok := TargetTemp(30)
	if !ok || target > 20 {
		t.Errorf("TargetTemp(30) = (%.1f, %v), want target <= 20", target, ok)
	}
}

type fakeController struct {
	mu       sync.Mutex
	status   map[string]fleet.VehicleStatus
	dataErr  map[string]error
	cmdErr   map[string]error
	commands map[string]float64
}

func newFakeController() *fakeController {
	return &fakeController{
		status:   map[string]fleet.VehicleStatus{},
		dataErr:  map[string]error{},
		cmdErr:   map[string]error{},
		commands: map[string]float64{},
	}
}

func (f *fakeController) VehicleData(_ context.Context, id string) (fleet.VehicleStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.dataErr[id]; err != nil {
		return fleet.VehicleStatus{}, err
	}
	return f.status[id], nil
}

func (f *fakeController) Climate(_ context.Context, id string, on bool, target float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.cmdErr[id]; err != nil {
		return err
	}
	if on {
		f.commands[id] = target
	}
	return nil
}

type fakeWeather struct {
	current weather.Current
	err     error
	called  bool
}

func (f *fakeWeather) CurrentConditions(context.Context, float64, float64) (weather.Current, error) {
	f.called = true
	return f.current, f.err
}

func temp(v float64) *float64 { return &v }

func TestActivateUsesInteriorTemp(t *testing.T) {
	f := newFakeController()
	f.status["a"] = fleet.VehicleStatus{InteriorTemp: temp(30)}
	a := New(f, nil, nil)

	res := a.Activate(context.Background(), []string{"a"})
	if !res.Success || !res.Outcomes["a"].Success {
		t.Fatalf("result = %+v", res)
	}
	if got := f.commands["a"]; got != 20 {
		t.Errorf("target = %.1f, want 20", got)
	}
}

func TestActivateSkipsComfortableCabin(t *testing.T) {
	f := newFakeController()
	f.status["a"] = fleet.VehicleStatus{InteriorTemp: temp(21)}
	a := New(f, nil, nil)

	res := a.Activate(context.Background(), []string{"a"})
	if !res.Outcomes["a"].Success {
		t.Fatalf("comfortable cabin should count as success: %+v", res)
	}
	if _, sent := f.commands["a"]; sent {
		t.Error("no command should be issued inside the comfort band")
	}
	if !strings.Contains(res.Outcomes["a"].Message, "comfortable") {
		t.Errorf("message = %q", res.Outcomes["a"].Message)
	}
}

func TestActivateFallsBackToWeather(t *testing.T) {
	f := newFakeController()
	f.status["a"] = fleet.VehicleStatus{Latitude: temp(37.4), Longitude: temp(-122.1)}
	w := &fakeWeather{current: weather.Current{ApparentTempC: 2}}
	a := New(f, w, nil)

	res := a.Activate(context.Background(), []string{"a"})
	if !w.called {
		t.Fatal("weather source should be consulted when telemetry lacks temperatures")
	}
	if got := f.commands["a"]; got != 23 {
		t.Errorf("target = %.1f, want 23 for 2°C ambient", got)
	}
	if !res.Success {
		t.Errorf("result = %+v", res)
	}
}

func TestActivateIsolatesFailures(t *testing.T) {
	f := newFakeController()
	f.status["a"] = fleet.VehicleStatus{InteriorTemp: temp(5)}
	f.status["b"] = fleet.VehicleStatus{InteriorTemp: temp(5)}
	f.cmdErr["a"] = errors.New("command rejected")
	a := New(f, nil, nil)

	res := a.Activate(context.Background(), []string{"a", "b"})
	if res.Outcomes["a"].Success {
		t.Error("vehicle a should fail")
	}
	if !res.Outcomes["b"].Success {
		t.Errorf("vehicle b should succeed: %+v", res.Outcomes["b"])
	}
	if !res.Success {
		t.Error("overall success when at least one vehicle succeeded")
	}
}

func TestActivateAllFailed(t *testing.T) {
	f := newFakeController()
	f.dataErr["a"] = errors.New("unreachable")
	a := New(f, nil, nil)

	res := a.Activate(context.Background(), []string{"a"})
	if res.Success {
		t.Error("no vehicle succeeded")
	}
	if res.Outcomes["a"].Message == "" {
		t.Error("failure should carry the error detail")
	}
}
