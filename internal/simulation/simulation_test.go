package simulation

import (
	"context"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modrouting-sim/internal/common"
	"modrouting-sim/internal/config"
	"modrouting-sim/internal/forwarding"
	"modrouting-sim/internal/logging"
	"modrouting-sim/internal/metrics"
	"modrouting-sim/internal/routing"
)

func staticConfig() *config.Config {
	cfg := config.Default()
	cfg.Nodes = 0
	cfg.MaxSpeed = 0
	cfg.LinkFailureProb = 0
	cfg.DeflectionSeedProb = 0
	cfg.TxRange = 1.5
	cfg.Devices = 1
	return cfg
}

// lineSim places nodes at x = 0, 1, 2, ... with the given radios per node.
func lineSim(t *testing.T, cfg *config.Config, n, devices int) *Simulation {
	t.Helper()
	sim, err := NewSimulation(cfg, logging.NewNop(), nil)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := sim.AddNode(common.Vec3(float64(i), 0, 0), NewRadios(devices, NeverFail))
		require.NoError(t, err)
	}
	require.NoError(t, sim.Table().Rebuild(cfg.TxRange))
	return sim
}

func TestNewSimulationValidates(t *testing.T) {
	_, err := NewSimulation(nil, logging.NewNop(), nil)
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Devices = 0
	_, err = NewSimulation(cfg, logging.NewNop(), nil)
	assert.Error(t, err)
}

func TestAddNodeValidation(t *testing.T) {
	sim, err := NewSimulation(staticConfig(), logging.NewNop(), nil)
	require.NoError(t, err)

	_, err = sim.AddNode(common.Vector{0, 0}, NewRadios(1, nil))
	assert.Error(t, err)
	_, err = sim.AddNode(common.Vec3(0, 0, 0), NewRadios(0, nil))
	assert.Error(t, err)
	_, err = sim.AddNode(common.Vec3(0, 0, 0), nil)
	assert.Error(t, err)

	node, err := sim.AddNode(common.Vec3(0, 0, 0), NewRadios(1, nil))
	require.NoError(t, err)
	assert.Equal(t, NodeAddr(0), node.Addr())
	assert.Equal(t, NodeAddr(0), sim.Router(0).Address())
}

func TestSendAlongLine(t *testing.T) {
	sim := lineSim(t, staticConfig(), 4, 1)

	out := sim.Send(0, 3)
	assert.Equal(t, ResultDelivered, out.Result)
	assert.Equal(t, 3, out.Hops)
	assert.Equal(t, 3, out.Node)

	out = sim.Send(3, 1)
	assert.Equal(t, ResultDelivered, out.Result)
	assert.Equal(t, 2, out.Hops)

	assert.Equal(t, 2, sim.Report().Delivered)
	mean, sd := sim.Report().StretchStats()
	assert.Equal(t, 1.0, mean)
	assert.Equal(t, 0.0, sd)
}

func TestSendWithoutRoute(t *testing.T) {
	cfg := staticConfig()
	cfg.TxRange = 0.5
	sim := lineSim(t, cfg, 3, 1)

	out := sim.Send(0, 2)
	assert.Equal(t, ResultNoRoute, out.Result)
	assert.ErrorIs(t, out.Err, routing.ErrNoRoute)
	assert.Equal(t, 1, sim.Report().Dropped[ResultNoRoute])
}

func TestSendTTLExpires(t *testing.T) {
	cfg := staticConfig()
	cfg.TTL = 2
	sim := lineSim(t, cfg, 5, 1)

	out := sim.Send(0, 4)
	assert.Equal(t, ResultTTLExpired, out.Result)
	assert.Equal(t, 2, out.Hops)
}

func TestDownLinkDeflects(t *testing.T) {
	sim := lineSim(t, staticConfig(), 3, 2)

	route, err := sim.Router(0).RouteOutput(NodeAddr(2))
	require.NoError(t, err)
	primary := route.Interface
	other := primary%2 + 1
	require.NoError(t, sim.Nodes()[0].Radios().SetUp(primary, false))

	out := sim.Send(0, 2)
	assert.Equal(t, ResultDeflected, out.Result)
	assert.Equal(t, 0, out.Node)
	assert.Equal(t, other, out.Interface)
	assert.Equal(t, 1, sim.Report().Deflected)
}

func TestAllLinksDownDrops(t *testing.T) {
	sim := lineSim(t, staticConfig(), 3, 1)
	require.NoError(t, sim.Nodes()[1].Radios().SetUp(1, false))

	out := sim.Send(0, 2)
	assert.Equal(t, ResultLinkDown, out.Result)
	assert.Equal(t, 1, out.Node)
	assert.Equal(t, 1, out.Hops)
	assert.ErrorIs(t, out.Err, forwarding.ErrNoUsableInterface)
}

func TestStaleTableDropsAsError(t *testing.T) {
	sim := lineSim(t, staticConfig(), 2, 1)
	_, err := sim.AddNode(common.Vec3(2, 0, 0), NewRadios(1, nil))
	require.NoError(t, err)

	out := sim.Send(0, 1)
	assert.Equal(t, ResultError, out.Result)
	assert.ErrorIs(t, out.Err, routing.ErrStaleTable)
}

func TestRunAccountsForEveryPacket(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = 11
	cfg.DeflectionSeedProb = 0.3
	cfg.LinkFailureProb = 0.2
	m := metrics.New()
	sim, err := NewSimulation(cfg, logging.NewNop(), m)
	require.NoError(t, err)
	require.NoError(t, sim.Populate())
	require.NoError(t, sim.Run(20))

	r := sim.Report()
	assert.Equal(t, 20*cfg.PacketsPerStep, r.Sent)
	assert.Equal(t, r.Sent, r.Delivered+r.Deflected+r.Broadcast+r.DroppedTotal())
	assert.Equal(t, 20/cfg.RebuildEvery, r.Rebuilds)
	assert.Equal(t, float64(1+r.Rebuilds), testutil.ToFloat64(m.Rebuilds))
	assert.InDelta(t, 20*cfg.Tick.Seconds(), sim.Time(), 1e-9)
	assert.Contains(t, r.String(), "sent 80")

	for _, n := range sim.Nodes() {
		p := n.GetPosition()
		for i := 0; i < config.Dimension; i++ {
			assert.GreaterOrEqual(t, p[i], cfg.Bounds[i*2])
			assert.LessOrEqual(t, p[i], cfg.Bounds[i*2+1])
		}
	}
}

func TestRouteSweep(t *testing.T) {
	cfg := config.Default()
	cfg.Nodes = 20
	sim, err := NewSimulation(cfg, logging.NewNop(), nil)
	require.NoError(t, err)
	require.NoError(t, sim.Populate())

	res, err := RouteSweep(context.Background(), sim.Table(), 4)
	require.NoError(t, err)
	assert.Equal(t, 20*19, res.Pairs)
	assert.Equal(t, res.Pairs, res.Routed+res.NoRoute)
	assert.Zero(t, res.Mismatches)
	assert.Contains(t, res.String(), "pairs 380")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RouteSweep(ctx, sim.Table(), 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRouteSweepNeedsBuiltTable(t *testing.T) {
	sim, err := NewSimulation(staticConfig(), logging.NewNop(), nil)
	require.NoError(t, err)
	_, err = sim.AddNode(common.Vec3(0, 0, 0), NewRadios(1, nil))
	require.NoError(t, err)
	_, err = RouteSweep(context.Background(), sim.Table(), 1)
	assert.ErrorIs(t, err, routing.ErrStaleTable)
}

func TestMobileNodeStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	bounds := []float64{-1, 1, -1, 1, 0, 0}
	n := NewMobileNode(common.Vec3(0, 0, 0), NodeAddr(0), 50, NewRadios(1, nil))
	for i := 0; i < 500; i++ {
		n.Update(rng, 0.5, bounds)
		p := n.GetPosition()
		for d := 0; d < 3; d++ {
			require.GreaterOrEqual(t, p[d], bounds[d*2])
			require.LessOrEqual(t, p[d], bounds[d*2+1])
		}
	}
	assert.Error(t, n.SetPosition(common.Vector{1}))
	require.NoError(t, n.SetPosition(common.Vec3(0.5, 0.5, 0)))
	assert.Equal(t, common.Vec3(0.5, 0.5, 0), n.Position())
	assert.Contains(t, n.String(), "10.0.0.1")
}

func TestRadios(t *testing.T) {
	r := NewRadios(3, BernoulliFailure(1))
	assert.Equal(t, 3, r.DeviceCount())
	assert.True(t, r.IsUp(1))
	assert.False(t, r.IsUp(0))
	assert.False(t, r.IsUp(4))

	r.Update(rand.New(rand.NewSource(1)))
	for i := 1; i <= 3; i++ {
		assert.False(t, r.IsUp(i))
	}
	require.NoError(t, r.SetUp(2, true))
	assert.True(t, r.IsUp(2))
	assert.Error(t, r.SetUp(9, true))
	assert.Equal(t, "1:down 2:up 3:down", r.String())

	never := NewRadios(2, nil)
	never.Update(rand.New(rand.NewSource(1)))
	assert.True(t, never.IsUp(1))
	assert.True(t, never.IsUp(2))
}

func TestReportStats(t *testing.T) {
	r := newReport()
	assert.Equal(t, 0.0, r.DeliveryRatio())
	r.record(Outcome{Result: ResultDelivered, Hops: 2}, 2)
	r.record(Outcome{Result: ResultDelivered, Hops: 4}, 2)
	r.record(Outcome{Result: ResultNoRoute}, -1)
	r.record(Outcome{Result: ResultDeflected}, 3)

	assert.Equal(t, 4, r.Sent)
	assert.Equal(t, 0.5, r.DeliveryRatio())
	mean, _ := r.HopStats()
	assert.Equal(t, 3.0, mean)
	mean, _ = r.StretchStats()
	assert.Equal(t, 1.5, mean)
	assert.Contains(t, r.String(), "dropped no_route")
}
