package trip

// DefaultDepartureMinutes is the assumed departure time (8:00 AM) used
// when arrival estimates must be computed locally.
const DefaultDepartureMinutes = 8 * 60

// closeOfDay is the close-time default for stops without a window.
const closeOfDay = 23*60 + 59

// AnnotateSchedule fills EstimatedArrival and HasConflict for a
// resolved stop list that came back without arrival strings, walking
// the route from the departure time and accumulating drive and dwell
// minutes. A stop that opens after the car arrives adds waiting time:
// the visit starts at the open time, and the conflict check asks
// whether the full visit still fits before close. When any stop
// already carries an arrival the backend did the scheduling pass
// itself and the list is left untouched.
func AnnotateSchedule(stops []Stop, departureMinutes int) {
	for _, s := range stops {
		if s.EstimatedArrival != "" {
			return
		}
	}

	clock := departureMinutes
	for i := range stops {
		s := &stops[i]

		arrival := clock
		if s.DriveMinutesFromPrev != nil {
			arrival += *s.DriveMinutesFromPrev
		}

		open := 0
		if s.OpenTime != "" {
			if m, err := ClockToMinutes(s.OpenTime); err == nil {
				open = m
			}
		}
		closes := closeOfDay
		if s.CloseTime != "" {
			if m, err := ClockToMinutes(s.CloseTime); err == nil {
				closes = m
			}
		}

		visitStart := max(arrival, open)
		s.EstimatedArrival = MinutesToClock12(visitStart)
		s.HasConflict = visitStart+s.DwellMinutes > closes

		clock = visitStart + s.DwellMinutes
	}
}
