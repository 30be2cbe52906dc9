package localize

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Unassociated is the ID of an observation which has not been associated with any landmark
const Unassociated = -1

// Pose is 2D position and heading of the agent
type Pose struct {
	// X is position along map x axis
	X float64
	// Y is position along map y axis
	Y float64
	// Theta is heading in radians
	Theta float64
}

// PoseFromVec creates Pose from vector v which stores x, y and theta in that order.
// It returns error if v is not 3 elements long.
func PoseFromVec(v mat.Vector) (Pose, error) {
	if v == nil || v.Len() != 3 {
		return Pose{}, fmt.Errorf("invalid pose vector")
	}

	return Pose{X: v.AtVec(0), Y: v.AtVec(1), Theta: v.AtVec(2)}, nil
}

// Vec returns pose as [x, y, theta] vector
func (p Pose) Vec() *mat.VecDense {
	return mat.NewVecDense(3, []float64{p.X, p.Y, p.Theta})
}

// String implements the Stringer interface.
func (p Pose) String() string {
	return fmt.Sprintf("Pose{X=%.4f Y=%.4f Theta=%.4f}", p.X, p.Y, p.Theta)
}

// Control is the control input of the agent
type Control struct {
	// Velocity is forward velocity
	Velocity float64
	// YawRate is heading rate of change in radians per second
	YawRate float64
}

// Landmark is a static map feature with known position
type Landmark struct {
	// ID is landmark identifier
	ID int
	// X is landmark map x coordinate
	X float64
	// Y is landmark map y coordinate
	Y float64
}

// Observation is a landmark observation.
// Raw sensor observations are expressed in the agent's local frame and carry Unassociated ID.
// Once transformed into map frame and associated, ID stores the identity of the matched landmark.
type Observation struct {
	// ID is associated landmark ID
	ID int
	// X is observation x coordinate
	X float64
	// Y is observation y coordinate
	Y float64
}

// WrapAngle wraps angle a into (-Pi, Pi] interval.
func WrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	switch {
	case a <= -math.Pi:
		a += 2 * math.Pi
	case a > math.Pi:
		a -= 2 * math.Pi
	}

	return a
}
