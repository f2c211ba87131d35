package simulation

import (
	"errors"
	"fmt"
	"math/rand"
	"net/netip"

	"modrouting-sim/internal/common"
	"modrouting-sim/internal/config"
	"modrouting-sim/internal/forwarding"
	"modrouting-sim/internal/logging"
	"modrouting-sim/internal/metrics"
	"modrouting-sim/internal/routing"
)

// BroadcastAddr is the subnet broadcast shared by every simulated node.
var BroadcastAddr = netip.MustParseAddr("10.255.255.255")

// NodeAddr is the address given to the node with registration index i.
func NodeAddr(i int) netip.Addr {
	return netip.AddrFrom4([4]byte{10, 0, byte(i >> 8), byte(i + 1)})
}

// Simulation moves nodes around, rebuilds the routing table on a fixed
// cadence, and pushes packets through the per-node routers hop by hop.
type Simulation struct {
	cfg     *config.Config
	rng     *rand.Rand
	baseLog logging.Logger
	log     logging.Logger
	metrics *metrics.Metrics

	table   *routing.Table
	nodes   []*MobileNode
	routers []*forwarding.Router

	step           int
	simulationTime float64
	report         *Report
}

// NewSimulation validates cfg and creates an empty simulation. m may be nil.
func NewSimulation(cfg *config.Config, log logging.Logger, m *metrics.Metrics) (*Simulation, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logging.GetLogger()
	}
	return &Simulation{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		baseLog: log,
		log:     log.With("component", "simulation"),
		metrics: m,
		table:   routing.NewTable(log, m),
		report:  newReport(),
	}, nil
}

func (s *Simulation) Table() *routing.Table {
	return s.table
}

func (s *Simulation) Nodes() []*MobileNode {
	return s.nodes
}

func (s *Simulation) Router(i int) *forwarding.Router {
	return s.routers[i]
}

func (s *Simulation) Report() *Report {
	return s.report
}

// Time is elapsed simulation time in seconds.
func (s *Simulation) Time() float64 {
	return s.simulationTime
}

// AddNode registers a node at pos with its radios and router.
func (s *Simulation) AddNode(pos common.Vector, radios *Radios) (*MobileNode, error) {
	if pos.Dimension() != config.Dimension {
		return nil, fmt.Errorf("node position dimension %d, expected %d", pos.Dimension(), config.Dimension)
	}
	if radios == nil || radios.DeviceCount() == 0 {
		return nil, errors.New("node needs at least one radio interface")
	}
	if len(s.nodes) >= forwarding.MaxTagSlots {
		return nil, fmt.Errorf("at most %d nodes fit in a deflection tag", forwarding.MaxTagSlots)
	}
	addr := NodeAddr(len(s.nodes))
	node := NewMobileNode(pos, addr, s.cfg.MaxSpeed, radios)
	id, err := s.table.AddNode(node, addr)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", node.GetID(), err)
	}

	r, err := forwarding.NewRouter(id, s.table, radios, s.baseLog, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("router for %s: %w", node.GetID(), err)
	}
	r.NotifyAddAddress(s.rng.Intn(radios.DeviceCount())+1, addr, BroadcastAddr)

	s.nodes = append(s.nodes, node)
	s.routers = append(s.routers, r)
	return node, nil
}

// AddRandomNode places a node uniformly inside the configured bounds.
func (s *Simulation) AddRandomNode() (*MobileNode, error) {
	pos, err := common.NewRandomVector(s.rng, config.Dimension, s.cfg.Bounds)
	if err != nil {
		return nil, fmt.Errorf("failed to generate random position for node: %w", err)
	}
	return s.AddNode(pos, NewRadios(s.cfg.Devices, BernoulliFailure(s.cfg.LinkFailureProb)))
}

// Populate adds cfg.Nodes random nodes and builds the first table.
func (s *Simulation) Populate() error {
	for i := 0; i < s.cfg.Nodes; i++ {
		if _, err := s.AddRandomNode(); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
	}
	return s.table.Rebuild(s.cfg.TxRange)
}

// Run advances the simulation by numSteps ticks.
func (s *Simulation) Run(numSteps int) error {
	s.log.Info("starting simulation", "nodes", len(s.nodes), "steps", numSteps,
		"range", s.cfg.TxRange, "tick", s.cfg.Tick)
	for i := 0; i < numSteps; i++ {
		if err := s.Step(); err != nil {
			return fmt.Errorf("step %d: %w", s.step, err)
		}
	}
	s.log.Info("simulation finished", "time", s.simulationTime, "sent", s.report.Sent,
		"delivered", s.report.Delivered, "deflected", s.report.Deflected, "dropped", s.report.DroppedTotal())
	return nil
}

// Step moves every node, redraws link state, rebuilds the table when due and
// sends this step's traffic.
func (s *Simulation) Step() error {
	deltaTime := s.cfg.Tick.Seconds()
	s.step++
	s.simulationTime += deltaTime

	for _, n := range s.nodes {
		var obj SimulationObject = n
		obj.Update(s.rng, deltaTime, s.cfg.Bounds)
		n.Radios().Update(s.rng)
	}

	if s.step%s.cfg.RebuildEvery == 0 {
		if err := s.table.Rebuild(s.cfg.TxRange); err != nil {
			return err
		}
		s.report.Rebuilds++
	}

	if len(s.nodes) < 2 {
		return nil
	}
	for p := 0; p < s.cfg.PacketsPerStep; p++ {
		src := s.rng.Intn(len(s.nodes))
		dst := s.rng.Intn(len(s.nodes) - 1)
		if dst >= src {
			dst++
		}
		s.Send(src, dst)
	}
	return nil
}

// Send originates a packet at node src for node dst and carries it until it
// terminates. With probability DeflectionSeedProb the origin marks a random
// node's tag slot before the packet leaves.
func (s *Simulation) Send(src, dst int) Outcome {
	pkt := forwarding.NewPacket(s.nodes[src].Addr(), s.nodes[dst].Addr(), len(s.nodes), s.cfg.TTL, s.simulationTime)
	if s.rng.Float64() < s.cfg.DeflectionSeedProb {
		slot := s.rng.Intn(len(s.nodes))
		_ = pkt.Tag.Set(slot, byte(s.rng.Intn(forwarding.MaxTagSlots)+1))
	}

	expected, err := s.table.HopCount(pkt.Src, pkt.Dst)
	if err != nil {
		expected = -1
	}

	out := s.carry(pkt, src)
	s.report.record(out, expected)
	s.log.Debug("packet finished", "packet", pkt.ID, "src", pkt.Src, "dst", pkt.Dst,
		"result", out.Result, "hops", out.Hops, "at", out.Node)
	return out
}

// Result is how a packet's journey ended.
type Result string

const (
	ResultDelivered  Result = "delivered"
	ResultDeflected  Result = "deflected"
	ResultBroadcast  Result = "broadcast"
	ResultNoRoute    Result = "no_route"
	ResultLinkDown   Result = "link_down"
	ResultTTLExpired Result = "ttl_expired"
	ResultError      Result = "error"
)

// Outcome describes one finished packet.
type Outcome struct {
	Result Result
	Hops   int
	// Node is the index of the node where the packet terminated.
	Node int
	// Interface is the delivery interface for delivered and deflected packets.
	Interface int
	Err       error
}

// hop is the delivery capability handed to a router for one hop. It
// records which capability was invoked.
type hop struct {
	iface   int
	forward bool
	route   forwarding.Route
}

func (h *hop) LocalDeliver(_ *forwarding.Packet, iface int) {
	h.iface = iface
}

func (h *hop) UnicastForward(route forwarding.Route, _ *forwarding.Packet) {
	h.forward = true
	h.route = route
}

func (s *Simulation) carry(pkt *forwarding.Packet, at int) Outcome {
	inIface := 0
	for {
		node := s.nodes[at]
		router := s.routers[at]
		h := &hop{}
		dec := router.RouteInput(pkt, inIface, h)

		switch dec.Action {
		case forwarding.ActionLocalDeliver:
			return Outcome{Result: ResultDelivered, Hops: pkt.Hops, Node: at, Interface: h.iface}
		case forwarding.ActionDeflectRelay:
			return Outcome{Result: ResultDeflected, Hops: pkt.Hops, Node: at, Interface: h.iface}
		case forwarding.ActionBroadcast:
			return Outcome{Result: ResultBroadcast, Hops: pkt.Hops, Node: at}
		case forwarding.ActionDrop:
			return Outcome{Result: dropResult(dec.Err), Hops: pkt.Hops, Node: at, Err: dec.Err}
		}

		if !h.forward {
			return Outcome{Result: ResultError, Hops: pkt.Hops, Node: at,
				Err: fmt.Errorf("router returned %s without forwarding", dec.Action)}
		}

		// Table relay. A down outgoing interface hands the packet back to
		// the router with this node's tag slot marked, which deflects it.
		if !node.Radios().IsUp(h.route.Interface) {
			if err := pkt.Tag.Set(router.ID(), byte(h.route.Interface)); err != nil {
				return Outcome{Result: ResultError, Hops: pkt.Hops, Node: at, Err: err}
			}
			inIface = h.route.Interface
			continue
		}

		pkt.TTL--
		pkt.Hops++
		if pkt.TTL <= 0 {
			return Outcome{Result: ResultTTLExpired, Hops: pkt.Hops, Node: at}
		}
		next, ok := s.table.Registry().Lookup(h.route.Gateway)
		if !ok {
			return Outcome{Result: ResultError, Hops: pkt.Hops, Node: at,
				Err: fmt.Errorf("%w: gateway %s", routing.ErrUnknownAddress, h.route.Gateway)}
		}
		at = next
		inIface = h.route.Interface
	}
}

func dropResult(err error) Result {
	switch {
	case errors.Is(err, forwarding.ErrNoUsableInterface):
		return ResultLinkDown
	case errors.Is(err, routing.ErrNoRoute):
		return ResultNoRoute
	default:
		return ResultError
	}
}
