package rand

import (
	"fmt"
	"math"
	"sort"
	"time"

	rnd "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// NewSource creates a new random number generator seeded with seed and returns it.
// If seed is 0 the generator is seeded with the current time.
// The returned generator is meant to be created once and shared by all draws of its owner:
// it is not safe for concurrent use.
func NewSource(seed uint64) *rnd.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return rnd.New(rnd.NewSource(seed))
}

// WithCovN draws n random samples from a zero-mean Normal (aka Gaussian) distribution with covariance cov.
// It returns matrix which contains the randomly generated samples stored in its columns.
// Samples are drawn from src; if src is nil the global source is used.
// It fails with error if n is non-positive or if SVD factorization of cov fails.
func WithCovN(cov mat.Symmetric, n int, src rnd.Source) (*mat.Dense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid number of samples requested: %d", n)
	}

	// Use SVD instead of Cholesky as Cholesky fails if cov is singular,
	// which it is whenever any of the standard deviations is zero
	var svd mat.SVD
	ok := svd.Factorize(cov, mat.SVDFull)
	if !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	U := new(mat.Dense)
	svd.UTo(U)
	vals := svd.Values(nil)
	for i := range vals {
		vals[i] = math.Sqrt(vals[i])
	}
	diag := mat.NewDiagDense(len(vals), vals)
	U.Mul(U, diag)

	norm := rnd.NormFloat64
	if src != nil {
		norm = rnd.New(src).NormFloat64
	}

	rows, _ := cov.Dims()
	data := make([]float64, rows*n)
	for i := range data {
		data[i] = norm()
	}
	samples := mat.NewDense(rows, n, data)
	samples.Mul(U, samples)

	return samples, nil
}

// RouletteDrawN draws n numbers randomly from a probability mass function (PMF) defined by weights in p.
// RouletteDrawN implements the Roulette Wheel Draw a.k.a. Fitness Proportionate Selection:
// - https://en.wikipedia.org/wiki/Fitness_proportionate_selection
// - http://www.keithschwarz.com/darts-dice-coins/
// Every draw is a binary search in the discrete CDF of p, so the draw runs in O(n log len(p)).
// Degenerate weights are handled as documented in Degenerate.
// It returns a slice of n indices into p.
// It fails with error if p is empty or nil or if n is negative.
func RouletteDrawN(p []float64, n int, src rnd.Source) ([]int, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid probability weights: %v", p)
	}

	if n < 0 {
		return nil, fmt.Errorf("invalid number of draws: %d", n)
	}

	cdf := cumDist(p)
	total := cdf[len(cdf)-1]
	u := distuv.Uniform{Min: 0, Max: 1, Src: src}

	// Generation:
	// 1. Generate a uniformly-random value x in the range [0,1)
	// 2. Using a binary search, find the index of the smallest element in cdf larger than x
	var val float64
	indices := make([]int, n)
	for i := range indices {
		// multiply the sample with the largest CDF value; easier than normalizing to [0,1)
		val = u.Rand() * total
		// Search returns the smallest index i such that cdf[i] > val
		indices[i] = clamp(sort.Search(len(cdf), func(i int) bool { return cdf[i] > val }), len(cdf))
	}

	return indices, nil
}

// SystematicDrawN draws n numbers from a probability mass function defined by weights in p
// using systematic resampling: a single uniform offset is drawn and the remaining n-1
// positions are spread evenly over the CDF of p, which makes the draw O(n + len(p)).
// Degenerate weights are handled as documented in Degenerate.
// It returns a slice of n indices into p.
// It fails with error if p is empty or nil or if n is negative.
func SystematicDrawN(p []float64, n int, src rnd.Source) ([]int, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("invalid probability weights: %v", p)
	}

	if n < 0 {
		return nil, fmt.Errorf("invalid number of draws: %d", n)
	}

	indices := make([]int, n)
	if n == 0 {
		return indices, nil
	}

	cdf := cumDist(p)
	step := cdf[len(cdf)-1] / float64(n)
	start := distuv.Uniform{Min: 0, Max: 1, Src: src}.Rand() * step

	j := 0
	for i := range indices {
		pos := start + float64(i)*step
		for j < len(cdf)-1 && cdf[j] <= pos {
			j++
		}
		indices[i] = j
	}

	return indices, nil
}

// Degenerate reports whether the weights in p do not form a proper distribution
// and the draws fall back to a uniform one: this is the case when p sums up to zero,
// contains NaN or contains +Inf weights. In the last case the draws are uniform over
// the +Inf weighted elements only.
func Degenerate(p []float64) bool {
	for _, v := range p {
		if math.IsInf(v, 1) {
			return true
		}
	}

	return !(floats.Sum(p) > 0)
}

// cumDist returns cumulative distribution of weights p
func cumDist(p []float64) []float64 {
	w := make([]float64, len(p))

	inf := false
	for i := range p {
		if math.IsInf(p[i], 1) {
			w[i] = 1
			inf = true
		}
	}

	if !inf {
		copy(w, p)
		sum := floats.Sum(w)
		// finite weights whose sum overflows: rescale by the largest one
		if math.IsInf(sum, 1) {
			floats.Scale(1/floats.Max(w), w)
			sum = floats.Sum(w)
		}
		// no probability mass: fall back to uniform distribution
		if !(sum > 0) {
			for i := range w {
				w[i] = 1
			}
		}
	}

	cdf := make([]float64, len(w))
	return floats.CumSum(cdf, w)
}

// clamp keeps index i within [0, n)
func clamp(i, n int) int {
	if i >= n {
		return n - 1
	}

	return i
}
