package simulation

import (
	"fmt"
	"math/rand"
	"net/netip"
	"sync"

	"github.com/google/uuid"

	"modrouting-sim/internal/common"
	"modrouting-sim/internal/routing"
)

var (
	_ SimulationObject         = (*MobileNode)(nil)
	_ routing.PositionProvider = (*MobileNode)(nil)
)

// accelerationScale is how much velocity can change per second.
const accelerationScale = 5.0

// MobileNode is a network participant doing a bounded random walk. It is the
// position provider the routing table reads on each rebuild.
type MobileNode struct {
	id   string
	addr netip.Addr

	mu       sync.RWMutex
	position common.Vector
	velocity common.Vector
	maxSpeed float64

	radios *Radios
}

// NewMobileNode creates a stationary node at pos.
func NewMobileNode(pos common.Vector, addr netip.Addr, maxSpeed float64, radios *Radios) *MobileNode {
	return &MobileNode{
		id:       fmt.Sprintf("node-%s", uuid.NewString()[:8]),
		addr:     addr,
		position: pos.Clone(),
		velocity: common.NewVector(pos.Dimension()),
		maxSpeed: maxSpeed,
		radios:   radios,
	}
}

func (n *MobileNode) GetID() string {
	return n.id
}

func (n *MobileNode) Addr() netip.Addr {
	return n.addr
}

func (n *MobileNode) Radios() *Radios {
	return n.radios
}

// GetPosition returns a copy of the current position.
func (n *MobileNode) GetPosition() common.Vector {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.position.Clone()
}

// Position implements routing.PositionProvider.
func (n *MobileNode) Position() common.Vector {
	return n.GetPosition()
}

func (n *MobileNode) SetPosition(pos common.Vector) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if pos.Dimension() != n.position.Dimension() {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", n.position.Dimension(), pos.Dimension())
	}
	n.position = pos.Clone()
	return nil
}

// Update nudges the velocity randomly, caps the speed and reflects off the
// bounds, damping the reflected component.
func (n *MobileNode) Update(rng *rand.Rand, deltaTime float64, bounds []float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	dim := n.position.Dimension()
	if len(bounds) != dim*2 {
		return
	}

	for i := 0; i < dim; i++ {
		n.velocity[i] += (rng.Float64()*2 - 1) * accelerationScale * deltaTime
	}
	if speed := n.velocity.Norm(); speed > n.maxSpeed {
		if speed == 0 || n.maxSpeed == 0 {
			n.velocity = common.NewVector(dim)
		} else {
			n.velocity = n.velocity.Scale(n.maxSpeed / speed)
		}
	}

	newPos, err := n.position.Add(n.velocity.Scale(deltaTime))
	if err != nil {
		return
	}
	for i := 0; i < dim; i++ {
		lo, hi := bounds[i*2], bounds[i*2+1]
		if newPos[i] < lo {
			newPos[i] = lo + (lo - newPos[i])
			n.velocity[i] *= -0.8
		} else if newPos[i] > hi {
			newPos[i] = hi - (newPos[i] - hi)
			n.velocity[i] *= -0.8
		}
		// A reflection larger than the box itself still has to land inside.
		if newPos[i] < lo {
			newPos[i] = lo
		} else if newPos[i] > hi {
			newPos[i] = hi
		}
	}
	n.position = newPos
}

func (n *MobileNode) String() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return fmt.Sprintf("Node[%s %s] Pos: %s Vel: %s", n.id, n.addr, n.position, n.velocity)
}
