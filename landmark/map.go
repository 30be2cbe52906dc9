package landmark

import (
	"fmt"
	"math"

	localize "github.com/milosgajdos/go-localize"
)

// Map is an immutable collection of known landmarks.
// Landmarks are kept in the order they were supplied in.
type Map struct {
	// landmarks stores map landmarks
	landmarks []localize.Landmark
	// index maps landmark IDs to their position in landmarks
	index map[int]int
}

// NewMap creates new Map from landmarks lms and returns it.
// It returns error if any two landmarks share the same ID or if the ID clashes with localize.Unassociated.
func NewMap(lms []localize.Landmark) (*Map, error) {
	landmarks := make([]localize.Landmark, len(lms))
	index := make(map[int]int, len(lms))

	for i, l := range lms {
		if l.ID == localize.Unassociated {
			return nil, fmt.Errorf("invalid landmark ID: %d", l.ID)
		}
		if j, ok := index[l.ID]; ok {
			return nil, fmt.Errorf("duplicate landmark ID %d at positions %d and %d", l.ID, j, i)
		}
		index[l.ID] = i
		landmarks[i] = l
	}

	return &Map{
		landmarks: landmarks,
		index:     index,
	}, nil
}

// Landmarks returns a copy of map landmarks
func (m *Map) Landmarks() []localize.Landmark {
	lms := make([]localize.Landmark, len(m.landmarks))
	copy(lms, m.landmarks)

	return lms
}

// Len returns the number of map landmarks
func (m *Map) Len() int {
	return len(m.landmarks)
}

// Landmark returns landmark with the given id.
// The returned bool is false if no such landmark exists.
func (m *Map) Landmark(id int) (localize.Landmark, bool) {
	i, ok := m.index[id]
	if !ok {
		return localize.Landmark{}, false
	}

	return m.landmarks[i], true
}

// Within returns landmarks whose Euclidean distance from (x, y) is at most r.
// The landmarks are returned in map order.
func Within(lms []localize.Landmark, x, y, r float64) []localize.Landmark {
	var in []localize.Landmark
	for _, l := range lms {
		if math.Hypot(l.X-x, l.Y-y) <= r {
			in = append(in, l)
		}
	}

	return in
}
