package routing

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"
)

// Dump writes the current table in a human-readable form: the node list, the
// hop matrix, the predecessor matrix and the recorded explicit routes.
func (t *Table) Dump(w io.Writer) error {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()

	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	if s == nil {
		fmt.Fprintln(tw, "routing table: not built")
	} else {
		fmt.Fprintf(tw, "routing table: %d nodes, range %.3f, built %s\n",
			s.n, s.txRange, s.built.Format("15:04:05.000"))
		if n := t.reg.Len(); n != s.n {
			fmt.Fprintf(tw, "STALE: registry now has %d nodes\n", n)
		}
		for i, a := range s.addrs {
			fmt.Fprintf(tw, "  node %d\t%s\n", i, a)
		}
		writeMatrix(tw, "hop", s.n, func(i, j int) string {
			if h := s.hopAt(i, j); !math.IsInf(h, 1) {
				return strconv.Itoa(int(h))
			}
			return "inf"
		})
		writeMatrix(tw, "pred", s.n, func(i, j int) string {
			if p := s.predAt(i, j); p != NoPredecessor {
				return strconv.Itoa(p)
			}
			return "-"
		})
	}

	routes := t.reg.ExplicitRoutes()
	fmt.Fprintf(tw, "explicit routes (not used for lookup): %d\n", len(routes))
	for _, r := range routes {
		fmt.Fprintf(tw, "  %s\t-> %s\t-> %s\n", r.Src, r.Relay, r.Dst)
	}
	return tw.Flush()
}

func writeMatrix(w io.Writer, name string, n int, cell func(i, j int) string) {
	fmt.Fprint(w, name)
	for j := 0; j < n; j++ {
		fmt.Fprintf(w, "\t%d", j)
	}
	fmt.Fprintln(w)
	for i := 0; i < n; i++ {
		fmt.Fprintf(w, "%d", i)
		for j := 0; j < n; j++ {
			fmt.Fprintf(w, "\t%s", cell(i, j))
		}
		fmt.Fprintln(w)
	}
}
