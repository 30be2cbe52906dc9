package sim

import (
	localize "github.com/milosgajdos/go-localize"
	"github.com/milosgajdos/go-localize/noise"
)

// Vehicle is a simulated agent driving with a constant control input.
// Its pose is the ground truth the filter estimates are compared against.
type Vehicle struct {
	pose localize.Pose
	u    localize.Control
	prop localize.Propagator
	q    localize.Noise
}

// NewVehicle creates new Vehicle starting at pose which is driven by control input u
// and moves according to the propagator prop.
// q is optional process noise added to every step; nil q drives the vehicle noise free.
func NewVehicle(pose localize.Pose, u localize.Control, prop localize.Propagator, q localize.Noise) *Vehicle {
	if q == nil {
		q, _ = noise.NewZero(3)
	}

	return &Vehicle{
		pose: pose,
		u:    u,
		prop: prop,
		q:    q,
	}
}

// Pose returns current vehicle pose
func (v *Vehicle) Pose() localize.Pose {
	return v.pose
}

// Control returns vehicle control input
func (v *Vehicle) Control() localize.Control {
	return v.u
}

// Step moves the vehicle over time dt and returns its new pose
func (v *Vehicle) Step(dt float64) localize.Pose {
	v.pose = v.prop.Propagate(v.pose, v.u, dt, v.q.Sample())
	v.pose.Theta = localize.WrapAngle(v.pose.Theta)

	return v.pose
}
