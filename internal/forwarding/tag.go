package forwarding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxTagSlots is the largest tag the one-byte length prefix can describe.
// It bounds both the node ids a tag can hold and, since a slot stores the
// chosen interface as one byte, the interfaces a deflection can record.
const MaxTagSlots = 255

var (
	ErrTagEncoding = errors.New("malformed deflection tag")

	// ErrTagCapacity is returned for node ids or interface counts a tag
	// cannot represent.
	ErrTagCapacity = errors.New("exceeds deflection tag capacity")
)

// Tag is the per-packet deflection record: one byte per node id. Zero means
// the packet has not been deflected at that node; a non-zero value is the
// interface chosen there. A Tag travels with exactly one packet and is not
// safe for concurrent use.
type Tag struct {
	slots []byte
}

// NewTag returns an all-zero tag with one slot per node, at most
// MaxTagSlots. NewRouter refuses ids past that, so every router has a slot.
func NewTag(nodes int) *Tag {
	if nodes < 0 {
		nodes = 0
	}
	if nodes > MaxTagSlots {
		nodes = MaxTagSlots
	}
	return &Tag{slots: make([]byte, nodes)}
}

func (t *Tag) Len() int {
	if t == nil {
		return 0
	}
	return len(t.slots)
}

// Get returns slot id. Missing slots, and any slot of a nil tag, read as 0.
func (t *Tag) Get(id int) byte {
	if t == nil || id < 0 || id >= len(t.slots) {
		return 0
	}
	return t.slots[id]
}

// Set writes slot id.
func (t *Tag) Set(id int, v byte) error {
	if t == nil || id < 0 || id >= len(t.slots) {
		return fmt.Errorf("tag slot %d out of range [0, %d)", id, t.Len())
	}
	t.slots[id] = v
	return nil
}

// Deflected reports whether node id has a deflection recorded.
func (t *Tag) Deflected(id int) bool {
	return t.Get(id) != 0
}

// Values returns a copy of the slots.
func (t *Tag) Values() []byte {
	if t == nil {
		return nil
	}
	out := make([]byte, len(t.slots))
	copy(out, t.slots)
	return out
}

func (t *Tag) Clone() *Tag {
	return &Tag{slots: t.Values()}
}

// MarshalBinary encodes the tag as a length byte followed by the slots.
func (t *Tag) MarshalBinary() ([]byte, error) {
	if t.Len() > MaxTagSlots {
		return nil, fmt.Errorf("%w: %d slots", ErrTagEncoding, t.Len())
	}
	buf := make([]byte, 0, 1+t.Len())
	buf = append(buf, byte(t.Len()))
	return append(buf, t.Values()...), nil
}

func (t *Tag) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty", ErrTagEncoding)
	}
	n := int(data[0])
	if len(data)-1 != n {
		return fmt.Errorf("%w: length byte %d, %d slot bytes", ErrTagEncoding, n, len(data)-1)
	}
	t.slots = make([]byte, n)
	copy(t.slots, data[1:])
	return nil
}

func (t *Tag) String() string {
	parts := make([]string, t.Len())
	for i := range parts {
		parts[i] = strconv.Itoa(int(t.slots[i]))
	}
	return "v=" + strings.Join(parts, " ")
}
