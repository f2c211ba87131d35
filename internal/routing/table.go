package routing

import (
	"fmt"
	"math"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"modrouting-sim/internal/common"
	"modrouting-sim/internal/logging"
	"modrouting-sim/internal/metrics"
)

// NoPredecessor marks a predecessor slot with no edge behind it.
const NoPredecessor = -1

// snapshot is one immutable build of the hop and predecessor matrices.
// Both are row-major n*n buffers; hop is backed by a gonum Dense.
type snapshot struct {
	txRange float64
	built   time.Time
	addrs   []netip.Addr
	n       int
	hop     *mat.Dense
	pred    []int
}

func (s *snapshot) hopAt(i, j int) float64 {
	return s.hop.At(i, j)
}

func (s *snapshot) predAt(i, j int) int {
	return s.pred[i*s.n+j]
}

// Table is the shortest-hop routing table for a set of mobile nodes.
// Rebuild replaces the matrices wholesale; lookups always see one complete
// snapshot.
type Table struct {
	reg     *Registry
	log     logging.Logger
	metrics *metrics.Metrics

	// rebuildMu serializes Rebuild so snapshots are swapped in the order
	// their positions were read.
	rebuildMu sync.Mutex

	mu   sync.RWMutex
	snap *snapshot
}

// NewTable creates an empty table. m may be nil.
func NewTable(log logging.Logger, m *metrics.Metrics) *Table {
	if log == nil {
		log = logging.GetLogger()
	}
	return &Table{
		reg:     NewRegistry(),
		log:     log.With("component", "routing-table"),
		metrics: m,
	}
}

// Registry exposes the node registry the table is built from.
func (t *Table) Registry() *Registry {
	return t.reg
}

// AddNode registers a node. Call Rebuild before routing to it.
func (t *Table) AddNode(handle PositionProvider, addr netip.Addr) (int, error) {
	id, err := t.reg.AddNode(handle, addr)
	if err != nil {
		return 0, err
	}
	t.log.Debug("node added", "id", id, "addr", addr)
	return id, nil
}

// AddRoute records an explicit route entry. See Registry.AddRoute.
func (t *Table) AddRoute(src, relay, dst netip.Addr) {
	t.log.Debug("explicit route recorded", "src", src, "relay", relay, "dst", dst)
	t.reg.AddRoute(src, relay, dst)
}

// Rebuild recomputes all-pairs shortest hop counts over the range graph of
// the current node positions. Two nodes are adjacent when their distance is
// in (0, txRange]. On error the previous snapshot is kept. Concurrent calls
// run one at a time; lookups are not blocked while a build runs.
func (t *Table) Rebuild(txRange float64) error {
	t.rebuildMu.Lock()
	defer t.rebuildMu.Unlock()

	start := time.Now()
	nodes := t.reg.Nodes()

	positions := make([]common.Vector, len(nodes))
	addrs := make([]netip.Addr, len(nodes))
	for i, n := range nodes {
		positions[i] = n.Handle.Position()
		addrs[i] = n.Addr
		if i > 0 && positions[i].Dimension() != positions[0].Dimension() {
			return fmt.Errorf("rebuild: node %d (%s) position has dimension %d, expected %d",
				i, n.Addr, positions[i].Dimension(), positions[0].Dimension())
		}
	}

	s := build(positions, addrs, txRange)

	t.mu.Lock()
	t.snap = s
	t.mu.Unlock()

	reachable := s.reachablePairs()
	t.metrics.ObserveRebuild(time.Since(start).Seconds(), s.n, reachable)
	t.log.Debug("routing table rebuilt", "nodes", s.n, "range", txRange, "reachable_pairs", reachable)
	for i := 0; i < s.n; i++ {
		t.log.Debug("predecessors", "row", i, "pred", s.predRow(i))
	}
	return nil
}

func build(positions []common.Vector, addrs []netip.Addr, txRange float64) *snapshot {
	n := len(positions)
	s := &snapshot{
		txRange: txRange,
		built:   time.Now(),
		addrs:   addrs,
		n:       n,
		pred:    make([]int, n*n),
	}
	if n == 0 {
		return s
	}

	s.hop = mat.NewDense(n, n, nil)
	hop := s.hop.RawMatrix().Data
	pred := s.pred

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			idx := i*n + j
			pred[idx] = NoPredecessor
			if i == j {
				hop[idx] = 0
				continue
			}
			// Dimensions were checked by the caller.
			d, _ := positions[i].Distance(positions[j])
			if d > 0 && d <= txRange {
				hop[idx] = 1
				pred[idx] = i
			} else {
				hop[idx] = math.Inf(1)
			}
		}
	}

	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			ik := hop[i*n+k]
			if math.IsInf(ik, 1) {
				continue
			}
			for j := 0; j < n; j++ {
				candidate := ik + hop[k*n+j]
				if candidate < hop[i*n+j] {
					hop[i*n+j] = candidate
					pred[i*n+j] = pred[k*n+j]
				}
			}
		}
	}
	return s
}

func (s *snapshot) reachablePairs() int {
	count := 0
	for i := 0; i < s.n; i++ {
		for j := 0; j < s.n; j++ {
			if i != j && !math.IsInf(s.hopAt(i, j), 1) {
				count++
			}
		}
	}
	return count
}

func (s *snapshot) predRow(i int) string {
	var b strings.Builder
	for j := 0; j < s.n; j++ {
		if j > 0 {
			b.WriteByte(' ')
		}
		if p := s.predAt(i, j); p == NoPredecessor {
			b.WriteByte('-')
		} else {
			b.WriteString(strconv.Itoa(p))
		}
	}
	return b.String()
}

// DirectDistance is the current Euclidean distance between nodes i and j,
// read from their position providers.
func (t *Table) DirectDistance(i, j int) (float64, error) {
	a, ok := t.reg.Node(i)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNodeIndex, i)
	}
	b, ok := t.reg.Node(j)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNodeIndex, j)
	}
	return a.Handle.Position().Distance(b.Handle.Position())
}

// current returns the snapshot if it still matches the registry.
func (t *Table) current() (*snapshot, error) {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	if s == nil {
		return nil, fmt.Errorf("%w: never built", ErrStaleTable)
	}
	if n := t.reg.Len(); n != s.n {
		return nil, fmt.Errorf("%w: built for %d nodes, registry has %d", ErrStaleTable, s.n, n)
	}
	return s, nil
}

// View is a read-only handle on one built snapshot.
type View struct {
	s *snapshot
}

// View returns the current snapshot.
func (t *Table) View() (View, error) {
	s, err := t.current()
	if err != nil {
		return View{}, err
	}
	return View{s: s}, nil
}

func (v View) Len() int { return v.s.n }

func (v View) Range() float64 { return v.s.txRange }

func (v View) BuiltAt() time.Time { return v.s.built }

func (v View) Addr(i int) netip.Addr { return v.s.addrs[i] }

// Hop is the minimal hop count from i to j, +Inf when unreachable.
func (v View) Hop(i, j int) float64 { return v.s.hopAt(i, j) }

// Pred is the node before j on the shortest path from i, or NoPredecessor.
func (v View) Pred(i, j int) int { return v.s.predAt(i, j) }

// HopMatrix returns a copy of the hop matrix.
func (v View) HopMatrix() *mat.Dense {
	if v.s.n == 0 {
		return nil
	}
	return mat.DenseCopyOf(v.s.hop)
}
