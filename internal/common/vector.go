package common

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// Vector represents a point or displacement in n-dimensional space.
// Node positions in the routing layer are 3D vectors.
type Vector []float64

// NewVector creates a zero vector of a given dimension.
func NewVector(dimension int) Vector {
	return make(Vector, dimension)
}

// Vec3 builds a 3D position.
func Vec3(x, y, z float64) Vector {
	return Vector{x, y, z}
}

// NewRandomVector creates a vector with random coordinates within given bounds.
// bounds should have dimension * 2 elements: [minX, maxX, minY, maxY, ...]
func NewRandomVector(rng *rand.Rand, dimension int, bounds []float64) (Vector, error) {
	if len(bounds) != dimension*2 {
		return nil, fmt.Errorf("bounds length must be dimension * 2, got %d, expected %d", len(bounds), dimension*2)
	}
	v := NewVector(dimension)
	for i := 0; i < dimension; i++ {
		lo, hi := bounds[i*2], bounds[i*2+1]
		v[i] = lo + rng.Float64()*(hi-lo)
	}
	return v, nil
}

// Dimension returns the dimension of the vector.
func (v Vector) Dimension() int {
	return len(v)
}

// Distance calculates the Euclidean distance between two vectors.
func (v Vector) Distance(other Vector) (float64, error) {
	if v.Dimension() != other.Dimension() {
		return 0, fmt.Errorf("vectors must have the same dimension: %d != %d", v.Dimension(), other.Dimension())
	}
	sumOfSquares := 0.0
	for i := range v {
		diff := v[i] - other[i]
		sumOfSquares += diff * diff
	}
	return math.Sqrt(sumOfSquares), nil
}

// Add returns v + other.
func (v Vector) Add(other Vector) (Vector, error) {
	if v.Dimension() != other.Dimension() {
		return nil, fmt.Errorf("vectors must have the same dimension: %d != %d", v.Dimension(), other.Dimension())
	}
	result := NewVector(v.Dimension())
	for i := range v {
		result[i] = v[i] + other[i]
	}
	return result, nil
}

// Scale returns v multiplied by a scalar.
func (v Vector) Scale(scalar float64) Vector {
	result := NewVector(v.Dimension())
	for i := range v {
		result[i] = v[i] * scalar
	}
	return result
}

// Norm is the Euclidean length of v.
func (v Vector) Norm() float64 {
	sumOfSquares := 0.0
	for _, val := range v {
		sumOfSquares += val * val
	}
	return math.Sqrt(sumOfSquares)
}

// Clone creates a deep copy of the vector.
func (v Vector) Clone() Vector {
	clone := make(Vector, len(v))
	copy(clone, v)
	return clone
}

// String formats the vector with limited precision.
func (v Vector) String() string {
	strs := make([]string, len(v))
	for i, val := range v {
		strs[i] = fmt.Sprintf("%.3f", val)
	}
	return fmt.Sprintf("[%s]", strings.Join(strs, ", "))
}
