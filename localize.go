package localize

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrNotInitialized is returned by filter operations invoked before the filter is initialized
var ErrNotInitialized = errors.New("filter not initialized")

// Filter is a landmark based localization filter.
type Filter interface {
	// Init seeds the filter from the initial pose estimate and its per-axis standard deviations
	Init(Pose, [3]float64) error
	// Predict advances the filter state by dt given process noise std devs and control input
	Predict(float64, [3]float64, Control) error
	// UpdateWeights recomputes filter weights from landmark observations
	UpdateWeights(float64, [2]float64, []Observation, Map) error
	// Resample draws a new filter population proportional to weights
	Resample() error
}

// Propagator propagates pose of the agent to the next step
type Propagator interface {
	// Propagate propagates pose p given control u over time dt.
	// wd is added to the propagated pose as process noise.
	Propagate(p Pose, u Control, dt float64, wd mat.Vector) Pose
}

// Map is a read-only collection of known landmarks
type Map interface {
	// Landmarks returns map landmarks in map order
	Landmarks() []Landmark
	// Len returns the number of landmarks
	Len() int
}

// Noise is per-axis system noise
type Noise interface {
	// Mean returns noise mean
	Mean() []float64
	// Cov returns covariance matrix of the noise
	Cov() mat.Symmetric
	// Sample returns a sample of the noise
	Sample() mat.Vector
}
