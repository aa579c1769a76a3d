// Package units provides shared constants and validation for output units.
//
// The core computes removal rates in mm³/s and feed speeds in mm/s; the API
// and report layers convert on the way out.
package units

// Removal-rate unit constants
const (
	MM3PS = "mm3ps" // cubic millimetres per second (native)
	CM3PM = "cm3pm" // cubic centimetres per minute
	MM3PM = "mm3pm" // cubic millimetres per minute
)

// Feed-speed unit constants
const (
	MMPS = "mmps" // millimetres per second (native)
	MPM  = "mpm"  // metres per minute
)

// ValidRateUnits contains all valid removal-rate unit values.
var ValidRateUnits = []string{MM3PS, CM3PM, MM3PM}

// IsValidRate checks if the given unit is a known removal-rate unit.
func IsValidRate(unit string) bool {
	for _, u := range ValidRateUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// RateUnitsString returns a comma-separated list of rate units for error messages.
func RateUnitsString() string {
	return "mm3ps, cm3pm, mm3pm"
}

// ConvertRate converts a removal rate from mm³/s to the target units.
// The core and the run store keep rates in mm³/s.
func ConvertRate(rateMM3PS float64, targetUnits string) float64 {
	switch targetUnits {
	case CM3PM:
		return rateMM3PS * 0.06 // mm³/s to cm³/min
	case MM3PM:
		return rateMM3PS * 60
	case MM3PS:
		return rateMM3PS
	default:
		return rateMM3PS // unknown unit keeps the native value
	}
}

// ConvertFeed converts a feed speed from mm/s to the target units.
func ConvertFeed(feedMMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPM:
		return feedMMPS * 0.06 // mm/s to m/min
	case MMPS:
		return feedMMPS
	default:
		return feedMMPS
	}
}
