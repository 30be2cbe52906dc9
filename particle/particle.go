package particle

import (
	"errors"
	"strconv"
	"strings"

	localize "github.com/milosgajdos/go-localize"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Filter is a particle filter
type Filter interface {
	// localize.Filter is localization filter
	localize.Filter
	// Particles returns filter particles
	Particles() []Particle
	// Weights returns particle weights
	Weights() mat.Vector
}

// ErrSizeMismatch is returned when particle association sequences differ in length
var ErrSizeMismatch = errors.New("association sequences size mismatch")

// Axis selects sensed coordinate axis
type Axis string

const (
	// AxisX selects sensed x coordinates
	AxisX Axis = "X"
	// AxisY selects sensed y coordinates
	AxisY Axis = "Y"
)

// Particle is a single pose hypothesis of a particle filter
type Particle struct {
	// ID is particle index within its generation
	ID int
	// X is particle x position
	X float64
	// Y is particle y position
	Y float64
	// Theta is particle heading in radians
	Theta float64
	// Weight is particle likelihood weight
	Weight float64
	// Associations stores IDs of landmarks associated with observations
	Associations []int
	// SenseX stores map frame x coordinates of associated observations
	SenseX []float64
	// SenseY stores map frame y coordinates of associated observations
	SenseY []float64
}

// Pose returns particle pose
func (p *Particle) Pose() localize.Pose {
	return localize.Pose{X: p.X, Y: p.Y, Theta: p.Theta}
}

// SetPose sets particle pose
func (p *Particle) SetPose(pose localize.Pose) {
	p.X, p.Y, p.Theta = pose.X, pose.Y, pose.Theta
}

// Clone returns a deep copy of the particle
func (p Particle) Clone() Particle {
	p.Associations = slices.Clone(p.Associations)
	p.SenseX = slices.Clone(p.SenseX)
	p.SenseY = slices.Clone(p.SenseY)

	return p
}

// SetAssociations attaches landmark associations ids and their map frame coordinates senseX and senseY to particle p.
// It returns ErrSizeMismatch if the three sequences differ in length.
func SetAssociations(p *Particle, ids []int, senseX, senseY []float64) error {
	if len(ids) != len(senseX) || len(ids) != len(senseY) {
		return ErrSizeMismatch
	}

	p.Associations = ids
	p.SenseX = senseX
	p.SenseY = senseY

	return nil
}

// FormatAssociations returns space separated landmark association IDs
func (p Particle) FormatAssociations() string {
	s := make([]string, len(p.Associations))
	for i, id := range p.Associations {
		s[i] = strconv.Itoa(id)
	}

	return strings.Join(s, " ")
}

// FormatSense returns space separated sensed coordinates along axis.
// AxisX returns x coordinates, any other axis returns y coordinates.
func (p Particle) FormatSense(axis Axis) string {
	v := p.SenseY
	if axis == AxisX {
		v = p.SenseX
	}

	s := make([]string, len(v))
	for i := range v {
		s[i] = strconv.FormatFloat(v[i], 'g', 6, 64)
	}

	return strings.Join(s, " ")
}

// Best returns the particle with the highest weight. Ties are resolved in favour of the lower index.
// The returned bool is false if ps is empty.
func Best(ps []Particle) (Particle, bool) {
	if len(ps) == 0 {
		return Particle{}, false
	}

	w := make([]float64, len(ps))
	for i := range ps {
		w[i] = ps[i].Weight
	}

	return ps[floats.MaxIdx(w)], true
}
