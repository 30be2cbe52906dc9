package motion

import (
	"math"

	localize "github.com/milosgajdos/go-localize"
	"gonum.org/v1/gonum/mat"
)

// YawRateThreshold is the default yaw rate magnitude below which motion is considered straight
const YawRateThreshold = 1e-5

// Bicycle is a kinematic bicycle model of an agent moving with constant velocity and yaw rate.
//
//	|ω| <  threshold: x' = x + v·dt·cos(θ)                  y' = y + v·dt·sin(θ)                  θ' = θ
//	|ω| >= threshold: x' = x + v/ω·(sin(θ+ω·dt) - sin(θ))   y' = y + v/ω·(cos(θ) - cos(θ+ω·dt))   θ' = θ + ω·dt
//
// The curved motion update divides by the yaw rate, so it is only used above the threshold.
type Bicycle struct {
	// threshold is straight motion yaw rate threshold
	threshold float64
}

// NewBicycle creates new bicycle model with straight motion yaw rate threshold and returns it.
// If threshold is non-positive YawRateThreshold is used.
func NewBicycle(threshold float64) *Bicycle {
	if threshold <= 0 {
		threshold = YawRateThreshold
	}

	return &Bicycle{
		threshold: threshold,
	}
}

// Threshold returns straight motion yaw rate threshold
func (b *Bicycle) Threshold() float64 {
	return b.threshold
}

// Propagate propagates pose p given control input u over time dt and returns the new pose.
// wd is [x, y, theta] process noise added to the propagated pose. Straight motion leaves
// the heading intact, so the theta noise is applied only to curved motion.
// Propagate ignores wd if it's nil or if it's not 3 elements long.
func (b *Bicycle) Propagate(p localize.Pose, u localize.Control, dt float64, wd mat.Vector) localize.Pose {
	var nx, ny, nt float64
	if wd != nil && wd.Len() == 3 {
		nx, ny, nt = wd.AtVec(0), wd.AtVec(1), wd.AtVec(2)
	}

	if math.Abs(u.YawRate) < b.threshold {
		return localize.Pose{
			X:     p.X + u.Velocity*dt*math.Cos(p.Theta) + nx,
			Y:     p.Y + u.Velocity*dt*math.Sin(p.Theta) + ny,
			Theta: p.Theta,
		}
	}

	r := u.Velocity / u.YawRate
	theta := p.Theta + u.YawRate*dt

	return localize.Pose{
		X:     p.X + r*(math.Sin(theta)-math.Sin(p.Theta)) + nx,
		Y:     p.Y + r*(math.Cos(p.Theta)-math.Cos(theta)) + ny,
		Theta: theta + nt,
	}
}
