package routing

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
)

func (s *snapshot) index(addr netip.Addr) (int, bool) {
	for i, a := range s.addrs {
		if a == addr {
			return i, true
		}
	}
	return 0, false
}

func (s *snapshot) endpoints(src, dst netip.Addr) (int, int, error) {
	i, ok := s.index(src)
	if !ok {
		return 0, 0, fmt.Errorf("%w: source %s", ErrUnknownAddress, src)
	}
	j, ok := s.index(dst)
	if !ok {
		return 0, 0, fmt.Errorf("%w: destination %s", ErrUnknownAddress, dst)
	}
	return i, j, nil
}

// firstHop walks the predecessor chain back from j and returns the node
// adjacent to i. The walk is bounded by n steps.
func (s *snapshot) firstHop(i, j int) (int, error) {
	if i == j {
		return i, nil
	}
	if math.IsInf(s.hopAt(i, j), 1) {
		return i, ErrNoRoute
	}
	cur := j
	for step := 0; step < s.n; step++ {
		k := cur
		cur = s.predAt(i, cur)
		if cur == NoPredecessor {
			break
		}
		if cur == i {
			return k, nil
		}
	}
	return i, fmt.Errorf("%w: %s -> %s", ErrUnreachable, s.addrs[i], s.addrs[j])
}

// FirstHop returns the neighbour of src on the shortest path to dst.
//
// When no relay can be named the source address itself is returned together
// with an error: ErrNoRoute, ErrUnknownAddress, ErrUnreachable or
// ErrStaleTable. FirstHop(a, a) returns a and a nil error.
func (t *Table) FirstHop(src, dst netip.Addr) (netip.Addr, error) {
	s, err := t.current()
	if err != nil {
		t.metrics.ObserveLookup(lookupResult(err))
		return src, err
	}
	i, j, err := s.endpoints(src, dst)
	if err != nil {
		t.metrics.ObserveLookup(lookupResult(err))
		return src, err
	}
	k, err := s.firstHop(i, j)
	if err != nil {
		t.metrics.ObserveLookup(lookupResult(err))
		if errors.Is(err, ErrNoRoute) {
			t.log.Debug("no path exists", "src", src, "dst", dst)
		}
		return src, err
	}
	if i == j {
		t.metrics.ObserveLookup("self")
	} else {
		t.metrics.ObserveLookup("ok")
	}
	return s.addrs[k], nil
}

// HopCount is the shortest hop distance from src to dst.
func (t *Table) HopCount(src, dst netip.Addr) (int, error) {
	s, err := t.current()
	if err != nil {
		return 0, err
	}
	i, j, err := s.endpoints(src, dst)
	if err != nil {
		return 0, err
	}
	h := s.hopAt(i, j)
	if math.IsInf(h, 1) {
		return 0, ErrNoRoute
	}
	return int(h), nil
}

// Path reconstructs the full shortest path, both endpoints included.
func (t *Table) Path(src, dst netip.Addr) ([]netip.Addr, error) {
	s, err := t.current()
	if err != nil {
		return nil, err
	}
	i, j, err := s.endpoints(src, dst)
	if err != nil {
		return nil, err
	}
	if i == j {
		return []netip.Addr{src}, nil
	}
	if math.IsInf(s.hopAt(i, j), 1) {
		return nil, ErrNoRoute
	}

	rev := []int{j}
	for cur := j; cur != i; {
		cur = s.predAt(i, cur)
		if cur == NoPredecessor || len(rev) > s.n {
			return nil, fmt.Errorf("%w: %s -> %s", ErrUnreachable, src, dst)
		}
		rev = append(rev, cur)
	}
	path := make([]netip.Addr, len(rev))
	for n, idx := range rev {
		path[len(rev)-1-n] = s.addrs[idx]
	}
	return path, nil
}

func lookupResult(err error) string {
	switch {
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, ErrUnknownAddress):
		return "unknown"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrStaleTable):
		return "stale"
	default:
		return "error"
	}
}
