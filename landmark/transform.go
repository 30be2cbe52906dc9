package landmark

import (
	"math"

	localize "github.com/milosgajdos/go-localize"
)

// ToMap transforms observation o from the local frame of an agent with pose p into the map frame.
// The transform rotates o by the agent heading and translates it by the agent position:
//
//	x' = x·cos(θ) - y·sin(θ) + x_p
//	y' = x·sin(θ) + y·cos(θ) + y_p
//
// Observation ID is carried over.
func ToMap(p localize.Pose, o localize.Observation) localize.Observation {
	sin, cos := math.Sincos(p.Theta)

	return localize.Observation{
		ID: o.ID,
		X:  o.X*cos - o.Y*sin + p.X,
		Y:  o.X*sin + o.Y*cos + p.Y,
	}
}

// ToLocal is the inverse of ToMap: it transforms map frame observation o
// into the local frame of an agent with pose p.
func ToLocal(p localize.Pose, o localize.Observation) localize.Observation {
	sin, cos := math.Sincos(p.Theta)
	dx, dy := o.X-p.X, o.Y-p.Y

	return localize.Observation{
		ID: o.ID,
		X:  dx*cos + dy*sin,
		Y:  -dx*sin + dy*cos,
	}
}

// ToMapAll transforms all observations obs into the map frame of pose p and stores them in dst.
// If dst does not have enough capacity a new slice is allocated. It returns the transformed observations.
func ToMapAll(dst []localize.Observation, p localize.Pose, obs []localize.Observation) []localize.Observation {
	if cap(dst) < len(obs) {
		dst = make([]localize.Observation, len(obs))
	}
	dst = dst[:len(obs)]

	for i := range obs {
		dst[i] = ToMap(p, obs[i])
	}

	return dst
}
