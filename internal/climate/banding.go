package climate

// Comfort band. A cabin already inside it, boundaries included, needs
// no preconditioning.
const (
	ComfortMinC = 19.0
	ComfortMaxC = 24.0
)

// Banding thresholds and their targets. Targets decrease monotonically
// as the cabin gets hotter and converge on roughly 21 around the
// comfort band.
const (
	coldExtremeC = 5.0  // below: 23
	coldMildC    = 12.0 // below: 22, else up to comfort: 21.5
	hotMildC     = 28.0 // up to: 20.5
	hotExtremeC  = 33.0 // up to: 20, above: 19
)

// TargetTemp maps a cabin (or ambient) temperature to a climate
// target. ok is false when the cabin is already comfortable and no
// command should be issued.
func TargetTemp(tempC float64) (target float64, ok bool) {
	switch {
	case tempC >= ComfortMinC && tempC <= ComfortMaxC:
		return 0, false
	case tempC < coldExtremeC:
		return 23, true
	case tempC < coldMildC:
		return 22, true
	case tempC < ComfortMinC:
		return 21.5, true
	case tempC <= hotMildC:
		return 20.5, true
	case tempC <= hotExtremeC:
		return 20, true
	default:
		return 19, true
	}
}
