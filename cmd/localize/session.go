package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	localize "github.com/milosgajdos/go-localize"
	"github.com/milosgajdos/go-localize/config"
	"github.com/milosgajdos/go-localize/landmark"
	"github.com/milosgajdos/go-localize/motion"
	"github.com/milosgajdos/go-localize/particle"
	"github.com/milosgajdos/go-localize/particle/pf"
	"github.com/milosgajdos/go-localize/rand"
	"github.com/milosgajdos/go-localize/sim"
	"github.com/milosgajdos/go-localize/stream"
	"github.com/milosgajdos/matrix"
)

// record is a single step of the localization trace
type record struct {
	Step         int     `csv:"step"`
	Time         float64 `csv:"time"`
	X            float64 `csv:"x"`
	Y            float64 `csv:"y"`
	Theta        float64 `csv:"theta"`
	TruthX       float64 `csv:"truth_x"`
	TruthY       float64 `csv:"truth_y"`
	TruthTheta   float64 `csv:"truth_theta"`
	Error        float64 `csv:"error"`
	YawError     float64 `csv:"yaw_error"`
	Observations int     `csv:"observations"`
	Best         int     `csv:"best"`
	Associations string  `csv:"associations"`
	SenseX       string  `csv:"sense_x"`
	SenseY       string  `csv:"sense_y"`
}

// session drives the filter with a simulated vehicle and sensor
type session struct {
	cfg     *config.Config
	m       *landmark.Map
	filter  *pf.PF
	vehicle *sim.Vehicle
	sensor  *sim.Sensor
	hub     *stream.Hub
	trace   *trace
	log     *slog.Logger
	// buf stores best particle observations transformed into map frame
	buf []localize.Observation
}

// newSession creates new localization session in map m and initializes its filter.
// hub and tr are optional; if they're not nil every step is published to hub and written to tr.
func newSession(cfg *config.Config, m *landmark.Map, hub *stream.Hub, tr *trace, logger *slog.Logger) (*session, error) {
	pc := cfg.Filter.PF(logger)
	pc.Propagator = motion.NewBicycle(cfg.Filter.YawThreshold)

	f, err := pf.New(pc)
	if err != nil {
		return nil, fmt.Errorf("creating filter: %w", err)
	}

	start := cfg.Vehicle.Start.Pose()
	if err := f.Init(start, cfg.Noise.Init); err != nil {
		return nil, fmt.Errorf("initializing filter: %w", err)
	}

	// simulation noise must not replay the filter noise
	seed := cfg.Filter.Seed
	if seed != 0 {
		seed++
	}

	sensor, err := sim.NewSensor(cfg.Sensor.Range, cfg.Noise.Landmark, rand.NewSource(seed))
	if err != nil {
		return nil, fmt.Errorf("creating sensor: %w", err)
	}

	return &session{
		cfg:     cfg,
		m:       m,
		filter:  f,
		vehicle: sim.NewVehicle(start, cfg.Vehicle.Control(), pc.Propagator, nil),
		sensor:  sensor,
		hub:     hub,
		trace:   tr,
		log:     logger,
	}, nil
}

// run runs steps session steps and returns their records.
// If pace is positive the steps are paced pace apart.
// It returns the records collected so far if ctx is cancelled.
func (s *session) run(ctx context.Context, steps int, pace time.Duration) ([]record, error) {
	var tick <-chan time.Time
	if pace > 0 {
		ticker := time.NewTicker(pace)
		defer ticker.Stop()
		tick = ticker.C
	}

	recs := make([]record, 0, steps)
	for i := 0; i < steps; i++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return recs, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return recs, err
		}

		rec, err := s.step(i)
		if err != nil {
			return recs, fmt.Errorf("step %d: %w", i, err)
		}
		recs = append(recs, rec)
	}

	return recs, nil
}

// step moves the vehicle, runs a single filter iteration and returns its record
func (s *session) step(i int) (record, error) {
	dt := s.cfg.Sensor.DT

	truth := s.vehicle.Step(dt)
	obs := s.sensor.Observe(truth, s.m)

	if err := s.filter.Predict(dt, s.cfg.Noise.Motion, s.vehicle.Control()); err != nil {
		return record{}, err
	}

	if err := s.filter.UpdateWeights(s.sensor.Range(), s.cfg.Noise.Landmark, obs, s.m); err != nil {
		return record{}, err
	}

	est, err := s.filter.Estimate()
	if err != nil {
		return record{}, err
	}

	pose, err := est.Pose()
	if err != nil {
		return record{}, err
	}

	best, err := s.associate(obs)
	if err != nil {
		return record{}, err
	}

	if err := s.filter.Resample(); err != nil {
		return record{}, err
	}

	rec := record{
		Step:         i,
		Time:         float64(i+1) * dt,
		X:            pose.X,
		Y:            pose.Y,
		Theta:        localize.WrapAngle(pose.Theta),
		TruthX:       truth.X,
		TruthY:       truth.Y,
		TruthTheta:   truth.Theta,
		Error:        math.Hypot(pose.X-truth.X, pose.Y-truth.Y),
		YawError:     math.Abs(localize.WrapAngle(pose.Theta - truth.Theta)),
		Observations: len(obs),
		Best:         best.ID,
		Associations: best.FormatAssociations(),
		SenseX:       best.FormatSense(particle.AxisX),
		SenseY:       best.FormatSense(particle.AxisY),
	}

	s.log.Info("localization step",
		"step", rec.Step,
		"estimate", pose.String(),
		"truth", truth.String(),
		"error", rec.Error,
		"yaw_error", rec.YawError,
		"best", rec.Best,
		"associations", rec.Associations,
	)
	s.log.Debug("estimate covariance", "step", rec.Step, "cov", fmt.Sprintf("%v", matrix.Format(est.Cov())))

	if err := s.trace.Write(rec); err != nil {
		return record{}, err
	}

	if s.hub != nil {
		msg := stream.Message{
			Step:       rec.Step,
			Time:       rec.Time,
			X:          rec.X,
			Y:          rec.Y,
			Theta:      rec.Theta,
			TruthX:     rec.TruthX,
			TruthY:     rec.TruthY,
			TruthTheta: rec.TruthTheta,
			Error:      rec.Error,
			Best:       rec.Best,
			Landmarks:  rec.Associations,
		}
		if err := s.hub.Publish(msg); err != nil {
			s.log.Warn("failed to publish step", "step", rec.Step, "err", err)
		}
	}

	return rec, nil
}

// associate attaches landmark associations of observations obs to the best filter particle and returns it
func (s *session) associate(obs []localize.Observation) (particle.Particle, error) {
	idx, best, err := s.filter.Best()
	if err != nil {
		return particle.Particle{}, err
	}

	s.buf = landmark.ToMapAll(s.buf, best.Pose(), obs)
	landmark.Associate(s.m.Landmarks(), s.buf)

	ids := make([]int, len(s.buf))
	senseX := make([]float64, len(s.buf))
	senseY := make([]float64, len(s.buf))
	for i, o := range s.buf {
		ids[i], senseX[i], senseY[i] = o.ID, o.X, o.Y
	}

	if err := s.filter.SetAssociations(idx, ids, senseX, senseY); err != nil {
		return particle.Particle{}, err
	}

	if err := particle.SetAssociations(&best, ids, senseX, senseY); err != nil {
		return particle.Particle{}, err
	}

	return best, nil
}
