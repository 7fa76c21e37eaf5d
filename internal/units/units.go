// Package units provides the physical-kind registry for tracked
// meteorological variables and validation helpers for detect criteria.
package units

import "strings"

// Kind classifies the physical dimensionality of a gridded variable.
type Kind string

const (
	Pressure     Kind = "pressure"     // Pa
	WindSpeed    Kind = "wind_speed"   // m s-1
	Vorticity    Kind = "vorticity"    // s-1
	Geopotential Kind = "geopotential" // m
	Temperature  Kind = "temperature"  // K
	Humidity     Kind = "humidity"     // %
	Altitude     Kind = "altitude"     // m
	Unknown      Kind = "unknown"      // 1
)

// kindsByPrefix maps variable-name prefixes to kinds. Names follow the
// CMIP/UM conventions the tracked model output uses (psl, sfcWind,
// rvT63, zg_250, ...); the first matching prefix wins.
var kindsByPrefix = []struct {
	prefix string
	kind   Kind
}{
	{"sfcWind", WindSpeed},
	{"wind", WindSpeed},
	{"orog", Altitude},
	{"psl", Pressure},
	{"slp", Pressure},
	{"rv", Vorticity},
	{"rh", Humidity},
	{"zg", Geopotential},
	{"ts", Temperature},
}

// unitsByKind is the canonical units string per kind.
var unitsByKind = map[Kind]string{
	Pressure:     "Pa",
	WindSpeed:    "m s-1",
	Vorticity:    "s-1",
	Geopotential: "m",
	Temperature:  "K",
	Humidity:     "%",
	Altitude:     "m",
	Unknown:      "1",
}

// KindFor guesses the physical kind of a variable from its name.
// Suffixes after the first underscore (pressure levels or grid tags
// like zg_250, rvT63_850) do not affect the match.
func KindFor(name string) Kind {
	base := name
	if i := strings.IndexByte(base, '_'); i >= 0 {
		base = base[:i]
	}
	for _, e := range kindsByPrefix {
		if strings.HasPrefix(base, e.prefix) {
			return e.kind
		}
	}
	return Unknown
}

// UnitsFor returns the canonical units string for a variable name.
func UnitsFor(name string) string {
	return unitsByKind[KindFor(name)]
}

// ConvertPressure converts a pressure in Pa to the target units.
// Gridded input and stored values are always Pa.
func ConvertPressure(pa float64, target string) float64 {
	switch target {
	case "hPa", "mb", "mbar":
		return pa / 100
	default:
		return pa
	}
}
