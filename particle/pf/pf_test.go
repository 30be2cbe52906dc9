package pf

import (
	"math"
	"os"
	"testing"

	localize "github.com/milosgajdos/go-localize"
	"github.com/milosgajdos/go-localize/landmark"
	"github.com/milosgajdos/go-localize/motion"
	"github.com/milosgajdos/go-localize/particle"
	"github.com/milosgajdos/go-localize/rand"
	"github.com/milosgajdos/go-localize/sim"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
)

var (
	lmMap     *landmark.Map
	zeroStd   [3]float64
	lmStd     [2]float64
	startPose localize.Pose
)

func setup() {
	lmMap, _ = landmark.NewMap([]localize.Landmark{
		{ID: 1, X: 5, Y: 0},
		{ID: 2, X: 0, Y: 10},
		{ID: 3, X: -8, Y: -3},
		{ID: 4, X: 12, Y: 9},
		{ID: 5, X: -4, Y: 15},
		{ID: 6, X: 20, Y: -6},
	})
	lmStd = [2]float64{0.3, 0.3}
	startPose = localize.Pose{X: 1, Y: 2, Theta: 0.5}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func newFilter(t *testing.T, c *Config) *PF {
	f, err := New(c)
	assert.NoError(t, err)
	assert.NotNil(t, f)

	return f
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	// invalid particle count
	f, err := New(&Config{ParticleCount: -10})
	assert.Nil(f)
	assert.Error(err)

	f, err = New(&Config{ParticleCount: 0})
	assert.Nil(f)
	assert.Error(err)

	// invalid resampler
	f, err = New(&Config{ParticleCount: 10, Resampler: "wheel"})
	assert.Nil(f)
	assert.Error(err)

	f, err = New(&Config{ParticleCount: 10})
	assert.NotNil(f)
	assert.NoError(err)
	assert.False(f.Initialized())
	assert.True(f.workers > 0)

	f, err = New(&Config{ParticleCount: 10, Resampler: Systematic, Workers: 3})
	assert.NotNil(f)
	assert.NoError(err)
	assert.Equal(3, f.workers)
}

func TestNotInitialized(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t, &Config{ParticleCount: 10, Seed: 1})

	err := f.Predict(0.1, zeroStd, localize.Control{Velocity: 1})
	assert.ErrorIs(err, localize.ErrNotInitialized)

	err = f.UpdateWeights(50, lmStd, nil, lmMap)
	assert.ErrorIs(err, localize.ErrNotInitialized)

	err = f.Resample()
	assert.ErrorIs(err, localize.ErrNotInitialized)

	est, err := f.Estimate()
	assert.Nil(est)
	assert.ErrorIs(err, localize.ErrNotInitialized)

	_, _, err = f.Best()
	assert.ErrorIs(err, localize.ErrNotInitialized)
}

func TestInit(t *testing.T) {
	assert := assert.New(t)

	n := 50
	f := newFilter(t, &Config{ParticleCount: n, Seed: 1})

	// zero standard deviations place all particles exactly at the initial pose
	assert.NoError(f.Init(startPose, zeroStd))
	assert.True(f.Initialized())

	ps := f.Particles()
	assert.Len(ps, n)
	for i, p := range ps {
		assert.Equal(i, p.ID)
		assert.Equal(startPose, p.Pose())
		assert.Equal(1.0, p.Weight)
		assert.Empty(p.Associations)
	}
}

func TestInitDistribution(t *testing.T) {
	assert := assert.New(t)

	n := 20000
	std := [3]float64{2, 0.5, 0.05}
	f := newFilter(t, &Config{ParticleCount: n, Seed: 2})
	assert.NoError(f.Init(startPose, std))

	xs := make([]float64, n)
	ys := make([]float64, n)
	ts := make([]float64, n)
	for i, p := range f.Particles() {
		xs[i], ys[i], ts[i] = p.X, p.Y, p.Theta
	}

	for i, data := range [][]float64{xs, ys, ts} {
		mean, variance := stat.MeanVariance(data, nil)
		assert.InDelta(startPose.Vec().AtVec(i), mean, 4*std[i]/math.Sqrt(float64(n)))
		assert.InDelta(std[i]*std[i], variance, 0.05*std[i]*std[i])
	}
}

func TestPredict(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		u    localize.Control
		pose localize.Pose
	}{
		{localize.Control{Velocity: 1, YawRate: 0}, localize.Pose{X: 1, Y: 0, Theta: 0}},
		{localize.Control{Velocity: 1, YawRate: math.Pi / 2}, localize.Pose{X: 2 / math.Pi, Y: 2 / math.Pi, Theta: math.Pi / 2}},
	}

	for _, tc := range testCases {
		f := newFilter(t, &Config{ParticleCount: 1, Seed: 3})
		assert.NoError(f.Init(localize.Pose{}, zeroStd))
		assert.NoError(f.Predict(1, zeroStd, tc.u))

		p := f.Particles()[0]
		assert.InDelta(tc.pose.X, p.X, 1e-9)
		assert.InDelta(tc.pose.Y, p.Y, 1e-9)
		assert.InDelta(tc.pose.Theta, p.Theta, 1e-9)
		assert.Equal(1.0, p.Weight)
	}
}

func TestPredictNoise(t *testing.T) {
	assert := assert.New(t)

	n := 10000
	std := [3]float64{0.3, 0.3, 0.01}
	f := newFilter(t, &Config{ParticleCount: n, Seed: 4})
	assert.NoError(f.Init(localize.Pose{}, zeroStd))
	assert.NoError(f.Predict(1, std, localize.Control{Velocity: 2, YawRate: 0}))

	xs := make([]float64, n)
	for i, p := range f.Particles() {
		xs[i] = p.X
	}
	mean, variance := stat.MeanVariance(xs, nil)
	assert.InDelta(2.0, mean, 0.02)
	assert.InDelta(0.09, variance, 0.01)
}

func TestUpdateWeights(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t, &Config{ParticleCount: 2, Seed: 5})
	assert.NoError(f.Init(localize.Pose{}, zeroStd))

	truth := localize.Pose{X: 1, Y: 1, Theta: 0.2}
	f.particles[0].SetPose(truth)
	f.particles[1].SetPose(localize.Pose{X: 4, Y: -2, Theta: 1.5})

	s, err := sim.NewSensor(50, [2]float64{0, 0}, rand.NewSource(1))
	assert.NoError(err)
	obs := s.Observe(truth, lmMap)
	assert.Len(obs, lmMap.Len())

	assert.NoError(f.UpdateWeights(50, lmStd, obs, lmMap))

	w := f.Weights()
	assert.True(w.AtVec(0) > w.AtVec(1))

	// every observation of the exact pose particle matches its landmark exactly
	peak := 1 / (2 * math.Pi * lmStd[0] * lmStd[1])
	assert.InEpsilon(math.Pow(peak, float64(len(obs))), w.AtVec(0), 1e-9)

	// observations are not modified
	for _, o := range obs {
		assert.Equal(localize.Unassociated, o.ID)
	}
}

func TestUpdateWeightsDensity(t *testing.T) {
	assert := assert.New(t)

	m, err := landmark.NewMap([]localize.Landmark{{ID: 7, X: 5, Y: 0}})
	assert.NoError(err)

	f := newFilter(t, &Config{ParticleCount: 1, Seed: 5})
	assert.NoError(f.Init(localize.Pose{}, zeroStd))

	obs := []localize.Observation{{ID: localize.Unassociated, X: 5.1, Y: 0.2}}
	assert.NoError(f.UpdateWeights(50, lmStd, obs, m))

	sx, sy := lmStd[0], lmStd[1]
	exp := math.Exp(-(0.1*0.1/(2*sx*sx) + 0.2*0.2/(2*sy*sy))) / (2 * math.Pi * sx * sy)
	assert.InEpsilon(exp, f.Weights().AtVec(0), 1e-9)

	// weights are reset before every update
	assert.NoError(f.UpdateWeights(50, lmStd, obs, m))
	assert.InEpsilon(exp, f.Weights().AtVec(0), 1e-9)
}

func TestUpdateWeightsEmpty(t *testing.T) {
	assert := assert.New(t)

	empty, err := landmark.NewMap(nil)
	assert.NoError(err)

	f := newFilter(t, &Config{ParticleCount: 5, Seed: 6})
	assert.NoError(f.Init(startPose, zeroStd))
	for i := range f.particles {
		f.particles[i].Weight = 0.5
	}

	obs := []localize.Observation{{ID: localize.Unassociated, X: 1, Y: 1}}

	// no landmarks leave weights untouched
	assert.NoError(f.UpdateWeights(50, lmStd, obs, empty))
	assert.NoError(f.UpdateWeights(50, lmStd, obs, nil))
	for _, p := range f.Particles() {
		assert.Equal(0.5, p.Weight)
	}

	// no observations reset the weights to 1
	assert.NoError(f.UpdateWeights(50, lmStd, nil, lmMap))
	for _, p := range f.Particles() {
		assert.Equal(1.0, p.Weight)
	}
}

func TestScoreUnmatched(t *testing.T) {
	assert := assert.New(t)

	lik := newLikelihood(lmStd)
	predicted := []localize.Landmark{{ID: 1, X: 0, Y: 0}}

	matched := []localize.Observation{{ID: 1, X: 0, Y: 0}}
	peak := lik.Prob(0, 0)
	assert.InEpsilon(peak, score(predicted, matched, lik), 1e-12)

	// observation associated with a landmark missing from predicted is neutral
	obs := []localize.Observation{{ID: 1, X: 0, Y: 0}, {ID: 42, X: 100, Y: 100}}
	assert.InEpsilon(peak, score(predicted, obs, lik), 1e-12)

	assert.Equal(1.0, score(predicted, nil, lik))
}

func TestRangeGate(t *testing.T) {
	assert := assert.New(t)

	m, err := landmark.NewMap([]localize.Landmark{
		{ID: 1, X: 5, Y: 0},
		{ID: 2, X: 50, Y: 0},
	})
	assert.NoError(err)

	// the agent observes landmark 2 which lies outside of the sensor range
	obs := []localize.Observation{{ID: localize.Unassociated, X: 50, Y: 0}}

	open := newFilter(t, &Config{ParticleCount: 1, Seed: 7})
	assert.NoError(open.Init(localize.Pose{}, zeroStd))
	assert.NoError(open.UpdateWeights(10, lmStd, obs, m))

	gated := newFilter(t, &Config{ParticleCount: 1, Seed: 7, RangeGate: true})
	assert.NoError(gated.Init(localize.Pose{}, zeroStd))
	assert.NoError(gated.UpdateWeights(10, lmStd, obs, m))

	// permissive filter matches landmark 2 exactly; gated filter only considers landmark 1
	peak := 1 / (2 * math.Pi * lmStd[0] * lmStd[1])
	assert.InEpsilon(peak, open.Weights().AtVec(0), 1e-9)
	assert.True(gated.Weights().AtVec(0) < open.Weights().AtVec(0))

	// no landmark in range leaves the weights untouched
	gated.particles[0].Weight = 0.25
	assert.NoError(gated.UpdateWeights(1, lmStd, obs, m))
	assert.Equal(0.25, gated.Weights().AtVec(0))
}

func TestUpdateWeightsParallel(t *testing.T) {
	assert := assert.New(t)

	n := 500
	std := [3]float64{1, 1, 0.2}
	s, err := sim.NewSensor(30, lmStd, rand.NewSource(8))
	assert.NoError(err)
	obs := s.Observe(startPose, lmMap)

	seq := newFilter(t, &Config{ParticleCount: n, Seed: 9, Workers: 1})
	par := newFilter(t, &Config{ParticleCount: n, Seed: 9, Workers: 7})

	for _, f := range []*PF{seq, par} {
		assert.NoError(f.Init(startPose, std))
		assert.NoError(f.Predict(0.1, std, localize.Control{Velocity: 1, YawRate: 0.1}))
		assert.NoError(f.UpdateWeights(30, lmStd, obs, lmMap))
	}

	assert.Equal(seq.Particles(), par.Particles())
}

func TestResample(t *testing.T) {
	assert := assert.New(t)

	for _, r := range []Resampler{Roulette, Systematic} {
		n := 100
		f := newFilter(t, &Config{ParticleCount: n, Seed: 10, Resampler: r})
		assert.NoError(f.Init(startPose, [3]float64{1, 1, 0.1}))

		// all the weight in a single particle
		for i := range f.particles {
			f.particles[i].Weight = 0
		}
		f.particles[42].Weight = 3
		want := f.Particles()[42]

		assert.NoError(f.Resample())
		ps := f.Particles()
		assert.Len(ps, n)
		for _, p := range ps {
			assert.Equal(want.ID, p.ID)
			assert.Equal(want.Pose(), p.Pose())
			assert.Equal(3.0, p.Weight)
		}
	}
}

func TestResampleUniform(t *testing.T) {
	assert := assert.New(t)

	n := 8000
	f := newFilter(t, &Config{ParticleCount: n, Seed: 11})
	assert.NoError(f.Init(startPose, zeroStd))
	assert.NoError(f.Resample())

	ps := f.Particles()
	assert.Len(ps, n)

	// equal weights draw particles near uniformly
	counts := make([]float64, 4)
	for _, p := range ps {
		counts[p.ID%4]++
	}
	for _, c := range counts {
		assert.InDelta(float64(n)/4, c, 200)
	}
}

func TestResampleDegenerate(t *testing.T) {
	assert := assert.New(t)

	n := 100
	f := newFilter(t, &Config{ParticleCount: n, Seed: 12})
	assert.NoError(f.Init(startPose, zeroStd))

	// zero weights fall back to uniform draw
	for i := range f.particles {
		f.particles[i].Weight = 0
	}
	assert.NoError(f.Resample())
	assert.Len(f.Particles(), n)

	// infinite weights take all the mass
	f.particles[3].Weight = math.Inf(1)
	f.particles[7].Weight = math.Inf(1)
	id3, id7 := f.particles[3].ID, f.particles[7].ID
	assert.NoError(f.Resample())
	for _, p := range f.Particles() {
		assert.True(p.ID == id3 || p.ID == id7)
		assert.True(math.IsInf(p.Weight, 1))
	}
}

func TestResampleClonesDiagnostics(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t, &Config{ParticleCount: 10, Seed: 13})
	assert.NoError(f.Init(startPose, zeroStd))
	for i := range f.particles {
		f.particles[i].Weight = 0
	}
	f.particles[0].Weight = 1
	assert.NoError(f.SetAssociations(0, []int{1, 2}, []float64{5, 0}, []float64{0, 10}))

	assert.NoError(f.Resample())
	f.particles[0].Associations[0] = 99
	assert.Equal(1, f.particles[1].Associations[0])

	assert.Error(f.SetAssociations(10, nil, nil, nil))
	assert.Error(f.SetAssociations(-1, nil, nil, nil))
	assert.ErrorIs(f.SetAssociations(0, []int{1}, nil, nil), particle.ErrSizeMismatch)
}

func TestEstimate(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t, &Config{ParticleCount: 20, Seed: 14})
	assert.NoError(f.Init(startPose, zeroStd))

	est, err := f.Estimate()
	assert.NoError(err)
	assert.InDelta(startPose.X, est.Val().AtVec(0), 1e-9)
	assert.InDelta(startPose.Y, est.Val().AtVec(1), 1e-9)
	assert.InDelta(startPose.Theta, est.Val().AtVec(2), 1e-9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(0.0, est.Cov().At(i, j), 1e-12)
		}
	}

	// weight concentrated in a single particle
	f.particles[4].SetPose(localize.Pose{X: 10, Y: -3, Theta: 1})
	for i := range f.particles {
		f.particles[i].Weight = 0
	}
	f.particles[4].Weight = 2
	est, err = f.Estimate()
	assert.NoError(err)
	assert.InDelta(10.0, est.Val().AtVec(0), 1e-9)
	assert.InDelta(-3.0, est.Val().AtVec(1), 1e-9)
	assert.InDelta(1.0, est.Val().AtVec(2), 1e-9)

	idx, best, err := f.Best()
	assert.NoError(err)
	assert.Equal(4, idx)
	assert.Equal(4, best.ID)
}

func TestEstimateWrap(t *testing.T) {
	assert := assert.New(t)

	f := newFilter(t, &Config{ParticleCount: 2, Seed: 15})
	assert.NoError(f.Init(localize.Pose{}, zeroStd))
	f.particles[0].Theta = math.Pi - 0.1
	f.particles[1].Theta = -math.Pi + 0.1

	est, err := f.Estimate()
	assert.NoError(err)

	// headings either side of Pi average to Pi, not 0
	assert.InDelta(math.Pi, math.Abs(est.Val().AtVec(2)), 1e-9)
	assert.InDelta(0.02, est.Cov().At(2, 2), 1e-9)

	// zero weights fall back to unweighted estimate
	f.particles[0].Weight, f.particles[1].Weight = 0, 0
	est, err = f.Estimate()
	assert.NoError(err)
	assert.InDelta(0.0, est.Val().AtVec(0), 1e-9)
	assert.InDelta(0.0, est.Val().AtVec(1), 1e-9)
	assert.InDelta(math.Pi, math.Abs(est.Val().AtVec(2)), 1e-9)
	assert.InDelta(0.02, est.Cov().At(2, 2), 1e-9)

	// finite weights whose sum overflows
	f.particles[0].X, f.particles[0].Y, f.particles[0].Theta = 1, 2, 0.3
	f.particles[1].X, f.particles[1].Y, f.particles[1].Theta = 3, 2, 0.3
	f.particles[0].Weight, f.particles[1].Weight = math.MaxFloat64, math.MaxFloat64
	est, err = f.Estimate()
	assert.NoError(err)
	assert.InDelta(2.0, est.Val().AtVec(0), 1e-9)
	assert.InDelta(2.0, est.Val().AtVec(1), 1e-9)
	assert.InDelta(0.3, est.Val().AtVec(2), 1e-9)
	assert.InDelta(2.0, est.Cov().At(0, 0), 1e-9)
	assert.InDelta(0.0, est.Cov().At(1, 1), 1e-9)
}

func TestLocalize(t *testing.T) {
	assert := assert.New(t)

	dt := 0.1
	std := [3]float64{0.3, 0.3, 0.01}
	u := localize.Control{Velocity: 2, YawRate: 0.1}

	vehicle := sim.NewVehicle(startPose, u, motion.NewBicycle(0), nil)
	sensor, err := sim.NewSensor(50, lmStd, rand.NewSource(16))
	assert.NoError(err)

	f := newFilter(t, &Config{ParticleCount: 200, Seed: 17})
	assert.NoError(f.Init(startPose, std))

	for i := 0; i < 50; i++ {
		truth := vehicle.Step(dt)
		assert.NoError(f.Predict(dt, std, u))
		assert.NoError(f.UpdateWeights(sensor.Range(), lmStd, sensor.Observe(truth, lmMap), lmMap))
		assert.NoError(f.Resample())
	}

	est, err := f.Estimate()
	assert.NoError(err)

	truth := vehicle.Pose()
	assert.InDelta(truth.X, est.Val().AtVec(0), 1.0)
	assert.InDelta(truth.Y, est.Val().AtVec(1), 1.0)
	assert.InDelta(0.0, localize.WrapAngle(truth.Theta-est.Val().AtVec(2)), 0.1)
}
