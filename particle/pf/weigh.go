package pf

import (
	"math"

	localize "github.com/milosgajdos/go-localize"
	"github.com/milosgajdos/go-localize/landmark"
	"github.com/milosgajdos/go-localize/particle"
	"gonum.org/v1/gonum/stat/distuv"
)

// likelihood is a bivariate Gaussian density with uncorrelated axes
// evaluated at the difference between an observation and its landmark.
type likelihood struct {
	x distuv.Normal
	y distuv.Normal
}

func newLikelihood(std [2]float64) likelihood {
	return likelihood{
		x: distuv.Normal{Mu: 0, Sigma: std[0]},
		y: distuv.Normal{Mu: 0, Sigma: std[1]},
	}
}

// Prob returns the density of the observation error dx, dy
func (l likelihood) Prob(dx, dy float64) float64 {
	return math.Exp(l.x.LogProb(dx) + l.y.LogProb(dy))
}

// UpdateWeights sets the weight of every filter particle to the likelihood of observations obs
// given the particle pose and map m. Observations are expressed in the local frame of the agent;
// std are the standard deviations of landmark measurements along x and y axes.
// Particles which have no landmarks to associate observations with keep their weights.
// sensorRange restricts the considered landmarks only if the filter has been configured with RangeGate.
// It returns localize.ErrNotInitialized if the filter has not been initialized.
func (f *PF) UpdateWeights(sensorRange float64, std [2]float64, obs []localize.Observation, m localize.Map) error {
	if !f.init {
		return localize.ErrNotInitialized
	}

	var lms []localize.Landmark
	if m != nil {
		lms = m.Landmarks()
	}

	lik := newLikelihood(std)

	f.parallel(func(worker, start, end int) {
		buf := f.scratch[worker]
		for i := start; i < end; i++ {
			buf = f.weigh(&f.particles[i], sensorRange, lik, obs, lms, buf)
		}
		f.scratch[worker] = buf
	})

	return nil
}

// weigh updates the weight of particle p and returns buf reused to store transformed observations
func (f *PF) weigh(p *particle.Particle, sensorRange float64, lik likelihood,
	obs []localize.Observation, lms []localize.Landmark, buf []localize.Observation) []localize.Observation {
	predicted := lms
	if f.rangeGate {
		predicted = landmark.Within(lms, p.X, p.Y, sensorRange)
	}

	if len(predicted) == 0 {
		return buf
	}

	buf = landmark.ToMapAll(buf, p.Pose(), obs)
	landmark.Associate(predicted, buf)
	p.Weight = score(predicted, buf, lik)

	return buf
}

// score returns the product of likelihoods of associated observations obs.
// Observations associated with landmarks missing from predicted don't affect the score.
func score(predicted []localize.Landmark, obs []localize.Observation, lik likelihood) float64 {
	w := 1.0
	for _, o := range obs {
		k := landmark.Find(predicted, o.ID)
		if k < 0 {
			continue
		}
		w *= lik.Prob(o.X-predicted[k].X, o.Y-predicted[k].Y)
	}

	return w
}
