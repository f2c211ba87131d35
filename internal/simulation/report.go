package simulation

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Report accumulates packet outcomes over a run.
type Report struct {
	Sent      int
	Delivered int
	Deflected int
	Broadcast int
	Rebuilds  int
	Dropped   map[Result]int

	// hops of delivered packets, and their ratio to the table's hop count
	// at send time.
	hops    []float64
	stretch []float64
}

func newReport() *Report {
	return &Report{Dropped: make(map[Result]int)}
}

func (r *Report) record(out Outcome, expectedHops int) {
	r.Sent++
	switch out.Result {
	case ResultDelivered:
		r.Delivered++
		r.hops = append(r.hops, float64(out.Hops))
		if expectedHops > 0 {
			r.stretch = append(r.stretch, float64(out.Hops)/float64(expectedHops))
		}
	case ResultDeflected:
		r.Deflected++
	case ResultBroadcast:
		r.Broadcast++
	default:
		r.Dropped[out.Result]++
	}
}

func (r *Report) DroppedTotal() int {
	total := 0
	for _, n := range r.Dropped {
		total += n
	}
	return total
}

// DeliveryRatio is delivered over sent, 0 when nothing was sent.
func (r *Report) DeliveryRatio() float64 {
	if r.Sent == 0 {
		return 0
	}
	return float64(r.Delivered) / float64(r.Sent)
}

// HopStats returns mean and standard deviation of delivered hop counts.
func (r *Report) HopStats() (mean, stdDev float64) {
	return meanStd(r.hops)
}

// StretchStats compares travelled hops with the table's hop count at send
// time. A mean of 1 means no packet took a longer path than planned.
func (r *Report) StretchStats() (mean, stdDev float64) {
	return meanStd(r.stretch)
}

func meanStd(xs []float64) (float64, float64) {
	switch len(xs) {
	case 0:
		return 0, 0
	case 1:
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sent %d, delivered %d (%.1f%%), deflected %d, broadcast %d, dropped %d, rebuilds %d\n",
		r.Sent, r.Delivered, 100*r.DeliveryRatio(), r.Deflected, r.Broadcast, r.DroppedTotal(), r.Rebuilds)

	reasons := make([]string, 0, len(r.Dropped))
	for reason := range r.Dropped {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(&b, "  dropped %-12s %d\n", reason, r.Dropped[Result(reason)])
	}

	hm, hs := r.HopStats()
	sm, ss := r.StretchStats()
	fmt.Fprintf(&b, "hops: mean %.3f sd %.3f; stretch: mean %.3f sd %.3f", hm, hs, sm, ss)
	return b.String()
}
