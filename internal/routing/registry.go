package routing

import (
	"fmt"
	"net/netip"
	"sync"

	"modrouting-sim/internal/common"
)

// PositionProvider reports a node's current position. It is read once per
// node on every rebuild.
type PositionProvider interface {
	Position() common.Vector
}

// NodeRecord is one registered participant. ID is its index in registration
// order and is never reassigned.
type NodeRecord struct {
	ID     int
	Addr   netip.Addr
	Handle PositionProvider
}

// ExplicitRoute is a (src, relay, dst) triple recorded by AddRoute.
type ExplicitRoute struct {
	Src   netip.Addr
	Relay netip.Addr
	Dst   netip.Addr
}

// Registry is the ordered node list the table is built from.
type Registry struct {
	mu     sync.RWMutex
	nodes  []NodeRecord
	routes []ExplicitRoute
}

func NewRegistry() *Registry {
	return &Registry{}
}

// AddNode appends a node and returns its id.
func (r *Registry) AddNode(handle PositionProvider, addr netip.Addr) (int, error) {
	if handle == nil {
		return 0, ErrNilHandle
	}
	if !addr.IsValid() {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAddress, addr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.nodes {
		if n.Addr == addr {
			return 0, fmt.Errorf("%w: %s already registered as node %d", ErrDuplicateAddress, addr, n.ID)
		}
	}
	id := len(r.nodes)
	r.nodes = append(r.nodes, NodeRecord{ID: id, Addr: addr, Handle: handle})
	return id, nil
}

// AddRoute records an explicit route. Resolution never reads these entries;
// they are kept so callers that pre-seed routes keep working and so the
// entries show up in Dump.
func (r *Registry) AddRoute(src, relay, dst netip.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, ExplicitRoute{Src: src, Relay: relay, Dst: dst})
}

// ExplicitRoutes returns a copy of the recorded explicit routes.
func (r *Registry) ExplicitRoutes() []ExplicitRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ExplicitRoute, len(r.routes))
	copy(out, r.routes)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Nodes returns a copy of the node list in id order.
func (r *Registry) Nodes() []NodeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NodeRecord, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Lookup finds the id of addr. The first match wins.
func (r *Registry) Lookup(addr netip.Addr) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.nodes {
		if n.Addr == addr {
			return n.ID, true
		}
	}
	return 0, false
}

// Node returns the record for id.
func (r *Registry) Node(id int) (NodeRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || id >= len(r.nodes) {
		return NodeRecord{}, false
	}
	return r.nodes[id], true
}
