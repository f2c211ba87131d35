package simulation

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"modrouting-sim/internal/forwarding"
)

var _ forwarding.LinkState = (*Radios)(nil)

// FailureModel decides whether interface iface is down for the next step.
type FailureModel func(rng *rand.Rand, iface int) bool

// NeverFail keeps every interface up.
func NeverFail(*rand.Rand, int) bool {
	return false
}

// BernoulliFailure takes each interface down independently with probability p.
func BernoulliFailure(p float64) FailureModel {
	if p < 0 {
		p = 0
	}
	return func(rng *rand.Rand, _ int) bool {
		return rng.Float64() < p
	}
}

// Radios is a node's set of outgoing interfaces, numbered 1..n. It
// implements forwarding.LinkState.
type Radios struct {
	mu      sync.RWMutex
	up      []bool
	failure FailureModel
}

// NewRadios creates n interfaces, all up. A nil model means NeverFail.
func NewRadios(n int, failure FailureModel) *Radios {
	if failure == nil {
		failure = NeverFail
	}
	up := make([]bool, n)
	for i := range up {
		up[i] = true
	}
	return &Radios{up: up, failure: failure}
}

func (r *Radios) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.up)
}

// IsUp reports interface state. Out-of-range interfaces are down.
func (r *Radios) IsUp(iface int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if iface < 1 || iface > len(r.up) {
		return false
	}
	return r.up[iface-1]
}

// SetUp forces an interface state.
func (r *Radios) SetUp(iface int, up bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if iface < 1 || iface > len(r.up) {
		return fmt.Errorf("interface %d out of range [1, %d]", iface, len(r.up))
	}
	r.up[iface-1] = up
	return nil
}

// Update redraws every interface from the failure model.
func (r *Radios) Update(rng *rand.Rand) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.up {
		r.up[i] = !r.failure(rng, i+1)
	}
}

func (r *Radios) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	states := make([]string, len(r.up))
	for i, up := range r.up {
		if up {
			states[i] = fmt.Sprintf("%d:up", i+1)
		} else {
			states[i] = fmt.Sprintf("%d:down", i+1)
		}
	}
	return strings.Join(states, " ")
}
