// Package geometry converts telescope sight lines and requested angles into
// dome slit azimuths and motor step counts.
package geometry

import "math"

func deg2rad(x float64) float64 {
	return x * math.Pi / 180
}

func rad2deg(x float64) float64 {
	return x * 180 / math.Pi
}

// Wrap normalises an angle in degrees to [0, 360).
func Wrap(angle float64) float64 {
	for angle >= 360 {
		angle -= 360
	}
	for angle < 0 {
		angle += 360
	}
	return angle
}

// ShortestDelta returns the signed angular distance from one azimuth to
// another, in (-180, 180]. Positive is clockwise.
func ShortestDelta(from, to float64) float64 {
	delta := Wrap(to - from)
	if delta > 180 {
		delta -= 360
	}
	return delta
}

// DomeAzimuth returns the dome azimuth (degrees, [0, 360)) that centres the
// slit on a sight line at the given horizontal coordinates. The telescope
// pier sits offsetX centimetres from the dome centre along the meridian, so
// the sight line is projected onto the dome's horizontal plane at radius
// radiusCm and translated before taking the angle.
func DomeAzimuth(alt, az, radiusCm, offsetXCm float64) float64 {
	x := radiusCm*math.Cos(deg2rad(az))*math.Cos(deg2rad(alt)) - offsetXCm
	y := radiusCm * math.Sin(deg2rad(az)) * math.Cos(deg2rad(alt))
	return Wrap(rad2deg(math.Atan2(y, x)))
}

// Unwrap chooses the absolute representation of a requested azimuth in
// [0, 360) that is nearest to the current unwrapped azimuth. The dome motor
// tracks absolute steps, so a 2 degree clockwise move from 359 must target
// 361 rather than drive 358 degrees the other way.
func Unwrap(current, target float64) float64 {
	rotation := math.Floor(current / 360)
	best := target + 360*rotation
	for _, candidate := range []float64{
		target + 360*(rotation-1),
		target + 360*(rotation+1),
	} {
		if math.Abs(current-candidate) < math.Abs(current-best) {
			best = candidate
		}
	}
	return best
}

// TargetSteps converts an unwrapped azimuth to the absolute motor step count
// measured from the home switch.
func TargetSteps(target, homeAzimuth, stepsPerRotation float64) int {
	return int(math.Round((target - homeAzimuth) / 360 * stepsPerRotation))
}

// StepsToAzimuth is the inverse of TargetSteps.
func StepsToAzimuth(steps int, homeAzimuth, stepsPerRotation float64) float64 {
	return homeAzimuth + 360*float64(steps)/stepsPerRotation
}
