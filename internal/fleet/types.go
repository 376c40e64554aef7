package fleet

import (
	"encoding/json"
	"fmt"
)

// Vehicle state values as the upstream reports them.
const (
	StateOnline  = "online"
	StateAsleep  = "asleep"
	StateOffline = "offline"
)

// Vehicle is one car on the account.
type Vehicle struct {
	ID          string `json:"id"`
	VIN         string `json:"vin"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"`
}

// UnmarshalJSON accepts the id as either a JSON number or a string.
// Tesla ids are large integers passed through the proxy verbatim; the
// literal is kept as-is so no precision is lost.
func (v *Vehicle) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          json.RawMessage `json:"id"`
		VIN         string          `json:"vin"`
		DisplayName string          `json:"display_name"`
		State       string          `json:"state"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.VIN = raw.VIN
	v.DisplayName = raw.DisplayName
	v.State = raw.State
	v.ID = ""

	if len(raw.ID) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.ID, &s); err == nil {
		v.ID = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw.ID, &n); err != nil {
		return fmt.Errorf("vehicle id: %w", err)
	}
	v.ID = n.String()
	return nil
}

func (v Vehicle) IsOnline() bool { return v.State == StateOnline }

// VehicleStatus is the flattened live snapshot of one vehicle.
type VehicleStatus struct {
	BatteryLevel int     `json:"battery_level"`
	BatteryRange float64 `json:"battery_range"`
	IsClimateOn  bool    `json:"is_climate_on"`
	InteriorTemp *float64 `json:"interior_temp"`
	ExteriorTemp *float64 `json:"exterior_temp"`
	Locked       bool     `json:"locked"`
	SentryMode   bool     `json:"sentry_mode"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
}

// RangeKm converts the reported range, which the upstream gives in
// miles, into kilometers.
func (s VehicleStatus) RangeKm() float64 {
	return s.BatteryRange * 1.60934
}
