package forwarding

import (
	"net/netip"

	"github.com/google/uuid"
)

// Packet is the slice of a network packet the forwarding decision needs.
type Packet struct {
	ID  string
	Src netip.Addr
	Dst netip.Addr
	TTL int
	Tag *Tag

	// CreatedAt is simulation time in seconds.
	CreatedAt float64
	Hops      int
}

// NewPacket creates a packet with a fresh id and an all-zero tag sized for
// the given node count.
func NewPacket(src, dst netip.Addr, nodes, ttl int, now float64) *Packet {
	return &Packet{
		ID:        uuid.NewString(),
		Src:       src,
		Dst:       dst,
		TTL:       ttl,
		Tag:       NewTag(nodes),
		CreatedAt: now,
	}
}
