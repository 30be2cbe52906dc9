package estimate

import (
	"fmt"

	localize "github.com/milosgajdos/go-localize"
	"gonum.org/v1/gonum/mat"
)

// Base is base pose estimate
type Base struct {
	// val is estimated [x, y, theta] pose
	val *mat.VecDense
	// cov is estimated pose covariance
	cov *mat.SymDense
}

// NewBase returns base estimate given val with zero covariance.
// It returns error if val is nil or empty.
func NewBase(val mat.Vector) (*Base, error) {
	if val == nil || val.Len() == 0 {
		return nil, fmt.Errorf("invalid estimate value")
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(v.Len(), nil)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// NewBaseWithCov returns base estimate given value and covariance.
// It returns error if the dimensions of val and cov don't match.
func NewBaseWithCov(val mat.Vector, cov mat.Symmetric) (*Base, error) {
	rv, _ := val.Dims()
	rc := cov.SymmetricDim()

	if rv != rc {
		return nil, fmt.Errorf("invalid dimensions. Val: %d, Cov: %d x %d", rv, rc, rc)
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	c := mat.NewSymDense(rc, nil)
	c.CopySym(cov)

	return &Base{
		val: v,
		cov: c,
	}, nil
}

// Val returns estimated value
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// Pose returns estimated value as agent pose.
// It returns error if the estimate is not a 3 dimensional pose estimate.
func (b *Base) Pose() (localize.Pose, error) {
	return localize.PoseFromVec(b.val)
}

// String implements the Stringer interface.
func (b *Base) String() string {
	return fmt.Sprintf("Estimate{\nVal=%v\nCov=%v\n}",
		mat.Formatted(b.val.T(), mat.Squeeze()),
		mat.Formatted(b.cov, mat.Prefix("    "), mat.Squeeze()))
}
