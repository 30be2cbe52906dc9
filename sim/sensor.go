package sim

import (
	"fmt"

	localize "github.com/milosgajdos/go-localize"
	"github.com/milosgajdos/go-localize/landmark"
	"github.com/milosgajdos/go-localize/noise"
	rnd "golang.org/x/exp/rand"
)

// Sensor is a simulated range sensor which observes map landmarks
// in the local frame of the agent it is mounted on.
type Sensor struct {
	rng   float64
	noise *noise.Gaussian
}

// NewSensor creates new Sensor with range rng whose measurements are perturbed
// by zero-mean Gaussian noise with standard deviations std along local x and y axes.
// Noise is drawn from src. It returns error if rng is not positive or std are invalid.
func NewSensor(rng float64, std [2]float64, src rnd.Source) (*Sensor, error) {
	if rng <= 0 {
		return nil, fmt.Errorf("invalid sensor range: %f", rng)
	}

	n, err := noise.NewGaussian(std[:], src)
	if err != nil {
		return nil, fmt.Errorf("failed to create sensor noise: %v", err)
	}

	return &Sensor{
		rng:   rng,
		noise: n,
	}, nil
}

// Range returns sensor range
func (s *Sensor) Range() float64 {
	return s.rng
}

// Observe returns noisy observations of the landmarks of map m which are within the sensor range
// of an agent with pose p. Observations are expressed in the local frame of the agent
// and are not associated with any landmark.
func (s *Sensor) Observe(p localize.Pose, m localize.Map) []localize.Observation {
	if m == nil {
		return nil
	}

	lms := landmark.Within(m.Landmarks(), p.X, p.Y, s.rng)
	obs := make([]localize.Observation, len(lms))
	for i, l := range lms {
		o := landmark.ToLocal(p, localize.Observation{ID: localize.Unassociated, X: l.X, Y: l.Y})
		e := s.noise.Sample()
		obs[i] = localize.Observation{
			ID: localize.Unassociated,
			X:  o.X + e.AtVec(0),
			Y:  o.Y + e.AtVec(1),
		}
	}

	return obs
}
