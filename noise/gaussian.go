package noise

import (
	"fmt"

	rnd "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Gaussian is zero-mean gaussian noise with independent axes
type Gaussian struct {
	// dists stores per-axis normal distributions
	dists []distuv.Normal
	// std stores per-axis standard deviations
	std []float64
}

// NewGaussian creates new Gaussian noise with per-axis standard deviations std.
// All the axes draw their samples from the same source src, which must outlive the noise.
// If src is nil the global random source is used.
// It returns error if std is empty.
func NewGaussian(std []float64, src rnd.Source) (*Gaussian, error) {
	if len(std) == 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", len(std))
	}

	dists := make([]distuv.Normal, len(std))
	for i := range std {
		dists[i] = distuv.Normal{Mu: 0, Sigma: std[i], Src: src}
	}

	s := make([]float64, len(std))
	copy(s, std)

	return &Gaussian{
		dists: dists,
		std:   s,
	}, nil
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	r := make([]float64, len(g.dists))
	for i := range g.dists {
		r[i] = g.dists[i].Rand()
	}

	return mat.NewVecDense(len(r), r)
}

// Cov returns covariance matrix of Gaussian noise: a diagonal matrix of per-axis variances.
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(len(g.std), nil)
	for i, s := range g.std {
		cov.SetSym(i, i, s*s)
	}

	return cov
}

// Mean returns Gaussian mean.
func (g *Gaussian) Mean() []float64 {
	return make([]float64, len(g.std))
}

// Std returns per-axis standard deviations.
func (g *Gaussian) Std() []float64 {
	std := make([]float64, len(g.std))
	copy(std, g.std)

	return std
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nMean=%v\nCov=%v\n}", g.Mean(), mat.Formatted(g.Cov(), mat.Prefix("    "), mat.Squeeze()))
}
