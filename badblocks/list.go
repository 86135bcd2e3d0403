// Package badblocks holds the bad-block list: an append-only sequence of
// logical block addresses, persisted as a plain text file.
package badblocks

// List accumulates bad block addresses during a run. Addresses are appended
// in discovery order and never reordered or dropped.
type List struct {
	addrs []uint64
}

// NewList returns a list seeded with the given addresses (typically loaded
// from a previous run's file).
func NewList(addrs []uint64) *List {
	l := &List{}
	l.addrs = append(l.addrs, addrs...)
	return l
}

// Append records a single bad block.
func (l *List) Append(block uint64) {
	l.addrs = append(l.addrs, block)
}

// AppendBatch records every block in [start, start+count) as bad. A batch
// classified bad is recorded address by address, not as its first block.
func (l *List) AppendBatch(start, count uint64) {
	for i := uint64(0); i < count; i++ {
		l.addrs = append(l.addrs, start+i)
	}
}

// Len returns the number of recorded addresses.
func (l *List) Len() int { return len(l.addrs) }

// Addrs returns a copy of the recorded addresses in discovery order.
func (l *List) Addrs() []uint64 {
	out := make([]uint64, len(l.addrs))
	copy(out, l.addrs)
	return out
}
