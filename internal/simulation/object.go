package simulation

import (
	"math/rand"

	"modrouting-sim/internal/common"
)

// SimulationObject is anything that lives in the simulated space.
type SimulationObject interface {
	// GetPosition returns the current position of the object.
	GetPosition() common.Vector
	// SetPosition sets the position of the object.
	SetPosition(pos common.Vector) error
	// Update advances the object by deltaTime seconds inside bounds.
	Update(rng *rand.Rand, deltaTime float64, bounds []float64)
	// GetID returns the unique identifier of the object.
	GetID() string
}
