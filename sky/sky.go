// Package sky converts celestial coordinates into the observer's horizontal
// frame. The dome core only depends on the Transform contract; the NOVAS
// implementation lives alongside it.
package sky

import "time"

// Transform converts an ICRS position to horizontal coordinates for a fixed
// observer. RA and Dec are in degrees; the returned altitude and azimuth are
// in degrees with azimuth measured from north, clockwise.
type Transform interface {
	Horizontal(ra, dec float64, t time.Time) (alt, az float64, err error)
}
