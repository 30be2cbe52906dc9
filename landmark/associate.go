package landmark

import (
	"math"

	localize "github.com/milosgajdos/go-localize"
)

// Associate assigns every observation in obs the ID of its nearest predicted landmark.
// Distances are Euclidean; on exact ties the landmark encountered first in predicted wins.
// Observations are modified in place. If predicted is empty obs are left unchanged.
func Associate(predicted []localize.Landmark, obs []localize.Observation) {
	if len(predicted) == 0 {
		return
	}

	for i := range obs {
		best := math.Inf(1)
		id := predicted[0].ID
		for _, l := range predicted {
			// squared distance preserves the ordering
			dx, dy := obs[i].X-l.X, obs[i].Y-l.Y
			if d := dx*dx + dy*dy; d < best {
				best = d
				id = l.ID
			}
		}
		obs[i].ID = id
	}
}

// Find returns the position of landmark with the given id in lms or -1 if there is none.
func Find(lms []localize.Landmark, id int) int {
	for i := range lms {
		if lms[i].ID == id {
			return i
		}
	}

	return -1
}
