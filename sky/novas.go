package sky

import (
	"time"

	"github.com/pebbe/novas"
)

// Nominal meteorology for the refraction model. The slit is wide enough that
// refraction-level errors are irrelevant, so refraction stays disabled and
// these only pin down the observer record.
const (
	temperature = 10.0
	pressure    = 1010.0
	deltaT      = 70.0
)

// Novas computes topocentric horizontal coordinates with the NOVAS library.
type Novas struct {
	place *novas.Place
}

// NewNovas returns a Transform for an observer at the given geodetic
// position. Latitude and longitude are in degrees, altitude in metres.
func NewNovas(latitude, longitude, altitude float64) *Novas {
	return &Novas{
		place: novas.NewPlace(latitude, longitude, altitude, temperature, pressure),
	}
}

func (n *Novas) Horizontal(ra, dec float64, t time.Time) (float64, float64, error) {
	body := novas.NewStar("target", "ICR", 1, ra/15, dec, 0, 0, 0, 0)
	topo := body.Topo(novas.NewTime(t.UTC(), deltaT), n.place, novas.REFR_NONE)
	return 90 - topo.Zd, topo.Az, nil
}
