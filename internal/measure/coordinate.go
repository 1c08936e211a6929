package measure

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// SubSecond is the fixed-point scale of Latitude and Longitude: values are
// arc-seconds times SubSecond.
const SubSecond = 1000

const (
	maxLatitude  = 90 * 3600 * SubSecond
	maxLongitude = 180 * 3600 * SubSecond

	// centimetersPerArcSecond is the meridian length of one arc-second.
	centimetersPerArcSecond = 3092
)

// Latitude in arc-seconds × SubSecond, north positive.
type Latitude int32

// Longitude in arc-seconds × SubSecond, east positive.
type Longitude int32

// LatitudeFromDegrees converts decimal degrees.
func LatitudeFromDegrees(deg float64) Latitude {
	return Latitude(math.Round(deg * 3600 * SubSecond))
}

// Degrees converts to decimal degrees.
func (l Latitude) Degrees() float64 { return float64(l) / (3600 * SubSecond) }

// LongitudeFromDegrees converts decimal degrees.
func LongitudeFromDegrees(deg float64) Longitude {
	return Longitude(math.Round(deg * 3600 * SubSecond))
}

// Degrees converts to decimal degrees.
func (l Longitude) Degrees() float64 { return float64(l) / (3600 * SubSecond) }

// Altitude in centimeters above mean sea level.
type Altitude int32

// Meters converts to meters.
func (a Altitude) Meters() float64 { return float64(a) / 100 }

// AltitudeFromMeters converts meters.
func AltitudeFromMeters(m float64) Altitude { return Altitude(math.Round(m * 100)) }

// Position is an absolute fixed-point position.
type Position struct {
	Latitude  Latitude
	Longitude Longitude
	Altitude  Altitude
}

// Displacement is an east-north-up offset in centimeters.
type Displacement struct {
	East, North, Up int32
}

// DisplacementFromMeters rounds an east-north-up vector in meters toward
// zero at centimeter resolution.
func DisplacementFromMeters(v r3.Vec) Displacement {
	return Displacement{East: int32(v.X * 100), North: int32(v.Y * 100), Up: int32(v.Z * 100)}
}

// Add offsets p by d. Longitude wraps at the antimeridian, latitude
// saturates at the poles.
func (p Position) Add(d Displacement) Position {
	lat := int64(p.Latitude) + int64(d.North)*SubSecond/centimetersPerArcSecond
	if lat > maxLatitude {
		lat = maxLatitude
	} else if lat < -maxLatitude {
		lat = -maxLatitude
	}

	cos := math.Cos(p.Latitude.Degrees() * math.Pi / 180)
	lon := int64(p.Longitude)
	if cos > 1e-6 {
		lon += int64(math.Round(float64(d.East) * SubSecond / (centimetersPerArcSecond * cos)))
	}
	if lon > maxLongitude {
		lon -= 2 * maxLongitude
	} else if lon < -maxLongitude {
		lon += 2 * maxLongitude
	}

	return Position{
		Latitude:  Latitude(lat),
		Longitude: Longitude(lon),
		Altitude:  p.Altitude + Altitude(d.Up),
	}
}

// Sub returns the approximate east-north-up offset from o to p in meters
// on a local tangent plane.
func (p Position) Sub(o Position) r3.Vec {
	cos := math.Cos(o.Latitude.Degrees() * math.Pi / 180)
	const m = centimetersPerArcSecond / 100.0 / SubSecond
	return r3.Vec{
		X: float64(int64(p.Longitude)-int64(o.Longitude)) * m * cos,
		Y: float64(int64(p.Latitude)-int64(o.Latitude)) * m,
		Z: (p.Altitude - o.Altitude).Meters(),
	}
}

// GNSSFix is a decoded receiver solution.
type GNSSFix struct {
	Fixed    bool
	Position Position
	// Velocity is east-north-up in mm/s.
	Velocity Axes

	Heading      Angle
	HeadingValid bool
	Course       Angle
	CourseValid  bool
}

// VelocityMetersPerSecond converts the mm/s velocity vector.
func (f GNSSFix) VelocityMetersPerSecond() r3.Vec {
	return MillimetersPerSecond(f.Velocity)
}

// MillimetersPerSecond converts an mm/s vector to m/s.
func MillimetersPerSecond(a Axes) r3.Vec {
	return r3.Vec{X: float64(a.X) / 1000, Y: float64(a.Y) / 1000, Z: float64(a.Z) / 1000}
}
