package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alexlifshitz/teslanav/internal/climate"
	"github.com/alexlifshitz/teslanav/internal/events"
	"github.com/alexlifshitz/teslanav/internal/fleet"
	"github.com/alexlifshitz/teslanav/internal/interpret"
	"github.com/alexlifshitz/teslanav/internal/planner"
	"github.com/alexlifshitz/teslanav/internal/trip"
)

type stubInterpreter struct{ it trip.Itinerary }

func (s stubInterpreter) Interpret(context.Context, string, interpret.Context) (trip.Itinerary, error) {
	return s.it, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, stops []trip.Stop, _ string, _ trip.RoutePreferences) (*trip.ResolvedRoute, error) {
	m, d := 30, 20.0
	return &trip.ResolvedRoute{Stops: stops, TotalDriveMinutes: &m, TotalDistanceKm: &d}, nil
}

func (stubResolver) OptimizeOrder(_ context.Context, stops []trip.Stop, _ string) ([]trip.Stop, error) {
	return stops, nil
}

type stubDispatcher struct{}

func (stubDispatcher) Send(_ context.Context, _ trip.ResolvedRoute, ids []string, _ []fleet.Vehicle) map[string]trip.SendOutcome {
	out := map[string]trip.SendOutcome{}
	for _, id := range ids {
		out[id] = trip.SendOutcome{Success: true, Message: "sent"}
	}
	return out
}

type stubAdvisor struct{}

func (stubAdvisor) Activate(_ context.Context, ids []string) climate.Result {
	out := map[string]trip.SendOutcome{}
	for _, id := range ids {
		out[id] = trip.SendOutcome{Success: true, Message: "climate set"}
	}
	return climate.Result{Success: len(ids) > 0, Outcomes: out}
}

type stubFleet struct{}

func (stubFleet) Vehicles(context.Context) ([]fleet.Vehicle, error) {
	return []fleet.Vehicle{{ID: "v1", DisplayName: "Rocket", State: "online"}}, nil
}

func (stubFleet) VehicleData(context.Context, string) (fleet.VehicleStatus, error) {
	return fleet.VehicleStatus{BatteryLevel: 80, BatteryRange: 250}, nil
}

func testServer(t *testing.T) (*httptest.Server, *events.Bus) {
	t.Helper()
	bus := events.New()
	p := planner.New(
		stubInterpreter{it: trip.Itinerary{Stops: []trip.Stop{
			{ID: "a", Address: "1 First St", StopType: trip.StopSpecific},
			{ID: "b", Address: "2 Second St", StopType: trip.StopSpecific},
		}}},
		stubResolver{}, stubDispatcher{}, stubAdvisor{}, stubFleet{}, nil, bus, nil)
	srv := httptest.NewServer(NewServer("", 0, p, bus, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, bus
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPlanEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/trip/plan", map[string]string{"prompt": "Costco, then home"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var snap planner.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Stops) != 2 {
		t.Errorf("stops = %d, want 2", len(snap.Stops))
	}
	if snap.TotalDriveMinutes == nil || *snap.TotalDriveMinutes != 30 {
		t.Errorf("totals = %v", snap.TotalDriveMinutes)
	}
}

func TestPlanRequiresPrompt(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/trip/plan", map[string]string{"prompt": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDispatchFlow(t *testing.T) {
	srv, _ := testServer(t)

	postJSON(t, srv.URL+"/v1/trip/plan", map[string]string{"prompt": "errands"})

	// Dispatch before selecting vehicles is refused.
	resp := postJSON(t, srv.URL+"/v1/trip/dispatch", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("premature dispatch status = %d, want 409", resp.StatusCode)
	}

	postJSON(t, srv.URL+"/v1/trip/select", map[string][]string{"vehicleIds": {"v1"}})

	resp = postJSON(t, srv.URL+"/v1/trip/dispatch", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch status = %d", resp.StatusCode)
	}
	var got struct {
		Outcomes map[string]trip.SendOutcome `json:"outcomes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Outcomes["v1"].Success {
		t.Errorf("outcomes = %+v", got.Outcomes)
	}
}

func TestClimateEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	postJSON(t, srv.URL+"/v1/trip/select", map[string][]string{"vehicleIds": {"v1"}})
	resp := postJSON(t, srv.URL+"/v1/trip/climate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Success {
		t.Error("expected success")
	}
}

func TestVehiclesEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/v1/vehicles")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var vehicles []fleet.Vehicle
	if err := json.NewDecoder(resp.Body).Decode(&vehicles); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(vehicles) != 1 || vehicles[0].DisplayName != "Rocket" {
		t.Errorf("vehicles = %+v", vehicles)
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv, _ := testServer(t)

	for _, path := range []string{"/health", "/v1/version", "/"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d", path, resp.StatusCode)
		}
	}
}

func TestEventsWebSocket(t *testing.T) {
	srv, bus := testServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is registered during the upgrade handler; give
	// it a moment before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	bus.Publish(events.Event{Source: events.SourcePlanner, Kind: events.KindItineraryParsed})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Kind != events.KindItineraryParsed {
		t.Errorf("event = %+v", got)
	}
}
