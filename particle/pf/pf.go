package pf

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"

	localize "github.com/milosgajdos/go-localize"
	"github.com/milosgajdos/go-localize/estimate"
	"github.com/milosgajdos/go-localize/motion"
	"github.com/milosgajdos/go-localize/noise"
	"github.com/milosgajdos/go-localize/particle"
	"github.com/milosgajdos/go-localize/rand"
	rnd "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Resampler is particle resampling method
type Resampler string

const (
	// Roulette draws every particle independently from the CDF of particle weights
	Roulette Resampler = "roulette"
	// Systematic draws particles at evenly spaced positions of the CDF of particle weights
	Systematic Resampler = "systematic"
)

var _ particle.Filter = (*PF)(nil)

// Config is particle filter configuration
type Config struct {
	// ParticleCount specifies number of filter particles
	ParticleCount int
	// Seed seeds filter random source; 0 seeds it with current time
	Seed uint64
	// Workers is the number of goroutines weighing particles; non-positive value uses GOMAXPROCS
	Workers int
	// Resampler selects resampling method; empty value selects Roulette
	Resampler Resampler
	// RangeGate restricts landmarks considered by particles to those within sensor range
	RangeGate bool
	// Propagator propagates particles; nil selects motion.Bicycle with the default yaw rate threshold
	Propagator localize.Propagator
	// Logger logs filter diagnostics; nil discards them
	Logger *slog.Logger
}

// PF is a particle filter localizing an agent in a map of known landmarks,
// a.k.a. Monte Carlo Localization. For more information see:
// https://en.wikipedia.org/wiki/Monte_Carlo_localization
//
// PF is not safe for concurrent use.
type PF struct {
	// prop propagates particles to the next step
	prop localize.Propagator
	// particles stores filter particles
	particles []particle.Particle
	// spare is resampling buffer swapped with particles
	spare []particle.Particle
	// src is filter random source shared by all draws
	src *rnd.Rand
	// draw draws particle indices proportional to weights
	draw func([]float64, int, rnd.Source) ([]int, error)
	// workers is the number of weighing goroutines
	workers int
	// scratch stores per worker observation buffers
	scratch [][]localize.Observation
	// rangeGate enables sensor range landmark filtering
	rangeGate bool
	// init is true once the filter has been initialized
	init bool
	// log is filter logger
	log *slog.Logger
}

// New creates new particle filter with configuration c and returns it.
// The filter must be initialized with Init before it can be used.
// New returns error if non-positive number of particles or unknown resampler is given.
func New(c *Config) (*PF, error) {
	// must have at least one particle; can't be negative
	if c.ParticleCount <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", c.ParticleCount)
	}

	var draw func([]float64, int, rnd.Source) ([]int, error)
	switch c.Resampler {
	case Roulette, "":
		draw = rand.RouletteDrawN
	case Systematic:
		draw = rand.SystematicDrawN
	default:
		return nil, fmt.Errorf("invalid resampler: %q", c.Resampler)
	}

	prop := c.Propagator
	if prop == nil {
		prop = motion.NewBicycle(motion.YawRateThreshold)
	}

	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	log := c.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	log.Debug("creating particle filter",
		"particles", c.ParticleCount,
		"workers", workers,
		"resampler", c.Resampler,
		"range_gate", c.RangeGate,
	)

	return &PF{
		prop:      prop,
		particles: make([]particle.Particle, c.ParticleCount),
		spare:     make([]particle.Particle, c.ParticleCount),
		src:       rand.NewSource(c.Seed),
		draw:      draw,
		workers:   workers,
		scratch:   make([][]localize.Observation, workers),
		rangeGate: c.RangeGate,
		log:       log,
	}, nil
}

// Init initializes filter particles by drawing their poses from three uncorrelated Gaussian
// distributions centred at pose with per-axis standard deviations std.
// Particles are assigned IDs in creation order and their weights are set to 1.
// It returns error if the particle poses fail to be drawn.
func (f *PF) Init(pose localize.Pose, std [3]float64) error {
	cov := mat.NewSymDense(3, nil)
	for i := range std {
		cov.SetSym(i, i, std[i]*std[i])
	}

	x, err := rand.WithCovN(cov, len(f.particles), f.src)
	if err != nil {
		return fmt.Errorf("failed to generate filter particles: %v", err)
	}

	for i := range f.particles {
		f.particles[i] = particle.Particle{
			ID:     i,
			X:      pose.X + x.At(0, i),
			Y:      pose.Y + x.At(1, i),
			Theta:  pose.Theta + x.At(2, i),
			Weight: 1,
		}
	}
	f.init = true

	return nil
}

// Initialized returns true if the filter has been initialized
func (f *PF) Initialized() bool {
	return f.init
}

// Predict propagates every filter particle over time dt given control input u
// and perturbs the propagated pose with zero-mean Gaussian noise with per-axis standard deviations std.
// It returns localize.ErrNotInitialized if the filter has not been initialized.
func (f *PF) Predict(dt float64, std [3]float64, u localize.Control) error {
	if !f.init {
		return localize.ErrNotInitialized
	}

	q, err := noise.NewGaussian(std[:], f.src)
	if err != nil {
		return fmt.Errorf("failed to create process noise: %v", err)
	}

	// noise draws share the filter random source, so particles are propagated sequentially
	for i := range f.particles {
		p := &f.particles[i]
		p.SetPose(f.prop.Propagate(p.Pose(), u, dt, q.Sample()))
	}

	return nil
}

// Resample replaces filter particles with len(particles) particles drawn with replacement
// with probability proportional to their weights. Resampled particles keep the ID, pose
// and weight of the particle they were drawn from.
// If the weights don't form a valid distribution the particles are drawn uniformly as documented in rand.Degenerate.
// It returns localize.ErrNotInitialized if the filter has not been initialized.
func (f *PF) Resample() error {
	if !f.init {
		return localize.ErrNotInitialized
	}

	w := f.weights()
	if rand.Degenerate(w) {
		f.log.Debug("degenerate particle weights: resampling uniformly", "sum", floats.Sum(w))
	}

	indices, err := f.draw(w, len(w), f.src)
	if err != nil {
		return fmt.Errorf("failed to sample filter particles: %v", err)
	}

	for i, j := range indices {
		f.spare[i] = f.particles[j].Clone()
	}
	f.particles, f.spare = f.spare, f.particles

	return nil
}

// Estimate returns pose estimate of the filter: weighted mean position, weighted circular mean heading
// and weighted covariance of particle poses. If particle weights don't form a valid distribution
// all particles are weighted equally.
// It returns localize.ErrNotInitialized if the filter has not been initialized.
func (f *PF) Estimate() (*estimate.Base, error) {
	if !f.init {
		return nil, localize.ErrNotInitialized
	}

	n := len(f.particles)
	w := f.weights()
	if rand.Degenerate(w) {
		w = nil
	} else {
		// finite weights whose sum overflows: rescale by the largest one
		if math.IsInf(floats.Sum(w), 1) {
			floats.Scale(1/floats.Max(w), w)
		}
		// express the weights as frequencies summing up to n for the covariance normalization
		floats.Scale(float64(n)/floats.Sum(w), w)
	}

	xs := make([]float64, n)
	ys := make([]float64, n)
	ts := make([]float64, n)
	for i := range f.particles {
		xs[i], ys[i], ts[i] = f.particles[i].X, f.particles[i].Y, f.particles[i].Theta
	}

	theta := stat.CircularMean(ts, w)
	val := mat.NewVecDense(3, []float64{stat.Mean(xs, w), stat.Mean(ys, w), theta})

	cov := mat.NewSymDense(3, nil)
	if n > 1 {
		data := mat.NewDense(n, 3, nil)
		for i := range f.particles {
			data.SetRow(i, []float64{xs[i], ys[i], theta + localize.WrapAngle(ts[i]-theta)})
		}
		stat.CovarianceMatrix(cov, data, w)
	}

	return estimate.NewBaseWithCov(val, cov)
}

// Particles returns a copy of filter particles
func (f *PF) Particles() []particle.Particle {
	ps := make([]particle.Particle, len(f.particles))
	for i := range f.particles {
		ps[i] = f.particles[i].Clone()
	}

	return ps
}

// Weights returns a vector containing filter particle weights
func (f *PF) Weights() mat.Vector {
	w := f.weights()

	return mat.NewVecDense(len(w), w)
}

// SetAssociations attaches landmark associations and their map frame coordinates to the i-th filter particle.
// It returns error if i is out of range or if the association sequences differ in length.
func (f *PF) SetAssociations(i int, ids []int, senseX, senseY []float64) error {
	if i < 0 || i >= len(f.particles) {
		return fmt.Errorf("invalid particle index: %d", i)
	}

	return particle.SetAssociations(&f.particles[i], ids, senseX, senseY)
}

// Best returns the index and a copy of the highest weighted filter particle.
// It returns localize.ErrNotInitialized if the filter has not been initialized.
func (f *PF) Best() (int, particle.Particle, error) {
	if !f.init {
		return -1, particle.Particle{}, localize.ErrNotInitialized
	}

	i := floats.MaxIdx(f.weights())

	return i, f.particles[i].Clone(), nil
}

func (f *PF) weights() []float64 {
	w := make([]float64, len(f.particles))
	for i := range f.particles {
		w[i] = f.particles[i].Weight
	}

	return w
}
