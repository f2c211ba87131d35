package forwarding

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"modrouting-sim/internal/logging"
	"modrouting-sim/internal/metrics"
	"modrouting-sim/internal/routing"
)

var (
	// ErrNoUsableInterface is returned when every interface tried for a
	// deflection is down.
	ErrNoUsableInterface = errors.New("no usable interface for deflection")

	// ErrNoAddress means the router has not been given an address yet.
	ErrNoAddress = errors.New("router has no address")
)

// Resolver answers first-hop queries. *routing.Table implements it.
type Resolver interface {
	FirstHop(src, dst netip.Addr) (netip.Addr, error)
}

// LinkState reports the node's outgoing interfaces. Interfaces are numbered
// 1..DeviceCount(); 0 is loopback. DeviceCount must not exceed MaxTagSlots.
type LinkState interface {
	DeviceCount() int
	IsUp(iface int) bool
}

// Delivery is what the surrounding stack does with a decided packet.
type Delivery interface {
	LocalDeliver(pkt *Packet, iface int)
	UnicastForward(route Route, pkt *Packet)
}

// Action is the outcome of one forwarding decision.
type Action int

const (
	ActionDrop Action = iota
	ActionLocalDeliver
	ActionBroadcast
	ActionTableRelay
	ActionDeflectRelay
)

func (a Action) String() string {
	switch a {
	case ActionDrop:
		return "drop"
	case ActionLocalDeliver:
		return "local_deliver"
	case ActionBroadcast:
		return "broadcast"
	case ActionTableRelay:
		return "table_relay"
	case ActionDeflectRelay:
		return "deflect_relay"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Route is a unicast forwarding instruction.
type Route struct {
	Source      netip.Addr
	Destination netip.Addr
	Gateway     netip.Addr
	Interface   int
}

// Decision is the tagged result of Decide. Which fields are meaningful
// depends on Action:
//
//	LocalDeliver  Interface is the inbound interface
//	TableRelay    Route
//	DeflectRelay  Interface is the chosen interface, Attempts the interfaces tried
//	Drop          Err, and Attempts when deflection ran out of interfaces
type Decision struct {
	Action    Action
	Interface int
	Route     Route
	Attempts  int
	Err       error
}

// Router makes the per-hop decision for one node.
type Router struct {
	id      int
	table   Resolver
	links   LinkState
	log     logging.Logger
	metrics *metrics.Metrics

	mu        sync.RWMutex
	iface     int
	local     netip.Addr
	broadcast netip.Addr
}

// NewRouter creates the router for node id. id selects the node's slot in
// deflection tags and must be below MaxTagSlots, as must the device count.
func NewRouter(id int, table Resolver, links LinkState, log logging.Logger, m *metrics.Metrics) (*Router, error) {
	if table == nil || links == nil {
		return nil, errors.New("router needs a resolver and link state")
	}
	if id < 0 || id >= MaxTagSlots {
		return nil, fmt.Errorf("node id %d: %w (max %d)", id, ErrTagCapacity, MaxTagSlots-1)
	}
	if n := links.DeviceCount(); n > MaxTagSlots {
		return nil, fmt.Errorf("%d devices: %w (max %d)", n, ErrTagCapacity, MaxTagSlots)
	}
	if log == nil {
		log = logging.GetLogger()
	}
	return &Router{
		id:      id,
		table:   table,
		links:   links,
		log:     log.With("component", "router", "node", id),
		metrics: m,
	}, nil
}

// NotifyAddAddress sets the interface and addresses the router answers for.
// Relayed packets leave through this interface.
func (r *Router) NotifyAddAddress(iface int, local, broadcast netip.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iface = iface
	r.local = local
	r.broadcast = broadcast
	r.log.Debug("address added", "iface", iface, "local", local, "broadcast", broadcast)
}

func (r *Router) ID() int {
	return r.id
}

func (r *Router) Address() netip.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.local
}

func (r *Router) addresses() (int, netip.Addr, netip.Addr) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.iface, r.local, r.broadcast
}

// Decide picks what happens to pkt arriving on inIface. Checks run in order:
// local destination, broadcast, table relay when this node has no deflection
// recorded in the tag, otherwise deflection. A deflection writes the chosen
// interface into the packet's tag slot for this node.
func (r *Router) Decide(pkt *Packet, inIface int) Decision {
	iface, local, broadcast := r.addresses()
	if !local.IsValid() {
		return Decision{Action: ActionDrop, Err: ErrNoAddress}
	}

	switch {
	case pkt.Dst == local:
		r.log.Debug("I'm the destination", "packet", pkt.ID)
		return Decision{Action: ActionLocalDeliver, Interface: inIface}
	case pkt.Dst == broadcast:
		r.log.Debug("broadcast, not forwarding", "packet", pkt.ID)
		return Decision{Action: ActionBroadcast}
	case !pkt.Tag.Deflected(r.id):
		return r.tableRelay(pkt, iface, local)
	default:
		return r.deflect(pkt)
	}
}

func (r *Router) tableRelay(pkt *Packet, iface int, local netip.Addr) Decision {
	relay, err := r.table.FirstHop(local, pkt.Dst)
	if err == nil && relay == local {
		err = routing.ErrNoRoute
	}
	if err != nil {
		r.log.Debug("can't find a route", "packet", pkt.ID, "dst", pkt.Dst, "error", err)
		return Decision{Action: ActionDrop, Err: fmt.Errorf("relay %s -> %s: %w", local, pkt.Dst, err)}
	}
	r.log.Debug("relay", "packet", pkt.ID, "via", relay, "dst", pkt.Dst)
	return Decision{
		Action: ActionTableRelay,
		Route: Route{
			Source:      pkt.Src,
			Destination: pkt.Dst,
			Gateway:     relay,
			Interface:   iface,
		},
	}
}

// deflect tries interfaces starting at (tag mod n)+1 and moving one
// interface per attempt, at most n attempts.
func (r *Router) deflect(pkt *Packet) Decision {
	n := r.links.DeviceCount()
	if n > MaxTagSlots {
		return Decision{Action: ActionDrop, Err: fmt.Errorf("%d devices: %w", n, ErrTagCapacity)}
	}
	if n <= 0 {
		return Decision{Action: ActionDrop, Err: fmt.Errorf("%w: node has no devices", ErrNoUsableInterface)}
	}

	start := int(pkt.Tag.Get(r.id))
	for attempt := 0; attempt < n; attempt++ {
		candidate := (start+attempt)%n + 1
		if !r.links.IsUp(candidate) {
			continue
		}
		if err := pkt.Tag.Set(r.id, byte(candidate)); err != nil {
			return Decision{Action: ActionDrop, Attempts: attempt + 1, Err: err}
		}
		r.log.Debug("deflected", "packet", pkt.ID, "iface", candidate, "attempts", attempt+1)
		return Decision{Action: ActionDeflectRelay, Interface: candidate, Attempts: attempt + 1}
	}
	return Decision{
		Action:   ActionDrop,
		Attempts: n,
		Err:      fmt.Errorf("%w: all %d interfaces down", ErrNoUsableInterface, n),
	}
}

// RouteInput decides and then invokes at most one delivery capability:
// LocalDeliver for local and deflected packets, UnicastForward for table
// relays, nothing for broadcasts and drops.
func (r *Router) RouteInput(pkt *Packet, inIface int, d Delivery) Decision {
	dec := r.Decide(pkt, inIface)
	r.metrics.ObserveDecision(dec.Action.String())

	switch dec.Action {
	case ActionLocalDeliver:
		d.LocalDeliver(pkt, dec.Interface)
	case ActionDeflectRelay:
		r.metrics.ObserveDeflection(dec.Attempts)
		d.LocalDeliver(pkt, dec.Interface)
	case ActionTableRelay:
		d.UnicastForward(dec.Route, pkt)
	case ActionDrop:
		if errors.Is(dec.Err, ErrNoUsableInterface) {
			r.metrics.ObserveDeflection(dec.Attempts)
		}
		r.log.Warn("packet dropped", "packet", pkt.ID, "src", pkt.Src, "dst", pkt.Dst, "error", dec.Err)
	}
	return dec
}

// RouteOutput resolves the route for a packet this node originates. On
// failure the gateway is the local address and the error says why.
func (r *Router) RouteOutput(dst netip.Addr) (Route, error) {
	iface, local, _ := r.addresses()
	if !local.IsValid() {
		return Route{}, ErrNoAddress
	}
	relay, err := r.table.FirstHop(local, dst)
	if err == nil && relay == local && dst != local {
		err = routing.ErrNoRoute
	}
	if err != nil {
		r.log.Debug("can't find route", "dst", dst, "error", err)
	}
	return Route{Source: local, Destination: dst, Gateway: relay, Interface: iface}, err
}
