// Package ledger tracks the sequence of items a channel has committed,
// one block at a time, independent of how any single block was agreed.
// It is grounded on the reference implementation's dls_sequence: "despite
// containing a lot of state this instance is not critical, and all state
// should be re-buildable from the list of decisions held by the peer."
package ledger

import (
	"fmt"

	"github.com/gdanezis/dlsconsensus-go/codec"
	"github.com/gdanezis/dlsconsensus-go/dlserr"
)

// Ledger accumulates items waiting to be sequenced and the ordered
// history of committed blocks.
type Ledger struct {
	bno            uint64
	toBeSequenced  map[string][]byte
	sequence       map[string][]byte
	oldBlocks      [][][]byte
}

// New returns an empty Ledger starting at block number 0.
func New() *Ledger {
	return &Ledger{
		toBeSequenced: map[string][]byte{},
		sequence:      map[string][]byte{},
	}
}

// Bno reports the next block number this Ledger expects.
func (l *Ledger) Bno() uint64 { return l.bno }

// PutItem schedules item for inclusion in a future block, unless it has
// already been sequenced or is already pending.
func (l *Ledger) PutItem(item []byte) {
	key := string(item)
	if _, done := l.sequence[key]; done {
		return
	}
	l.toBeSequenced[key] = item
}

// CheckBlock reports whether block is a valid proposal for bno: it must
// name the next expected block number, and none of its items may already
// be sequenced. As a side effect, every item in block is scheduled via
// PutItem, mirroring the reference implementation (a peer checking a
// remote block also learns about any items it hadn't seen yet).
func (l *Ledger) CheckBlock(bno uint64, block [][]byte) bool {
	if bno != l.bno {
		return false
	}
	for _, item := range block {
		l.PutItem(item)
	}
	for _, item := range block {
		if _, done := l.sequence[string(item)]; done {
			return false
		}
	}
	return true
}

// SetBlock commits block as block number bno, advancing the ledger to
// bno+1. It fails with dlserr.ErrWrongBlockNumber if bno isn't the next
// expected block.
func (l *Ledger) SetBlock(bno uint64, block [][]byte) error {
	if bno != l.bno {
		return fmt.Errorf("%w: got %d, want %d", dlserr.ErrWrongBlockNumber, bno, l.bno)
	}
	inBlock := make(map[string]struct{}, len(block))
	for _, item := range block {
		key := string(item)
		inBlock[key] = struct{}{}
		l.sequence[key] = item
	}
	for key := range inBlock {
		delete(l.toBeSequenced, key)
	}
	l.bno++
	l.oldBlocks = append(l.oldBlocks, codec.SortItems(block))
	return nil
}

// NewBlock returns the current pending item set as a proposal for bno,
// and fails if bno isn't the next expected block number or the proposal
// fails its own CheckBlock validation (which can't normally happen for a
// proposal built from this ledger's own state, but is checked anyway
// since CheckBlock is the single source of truth for validity).
func (l *Ledger) NewBlock(bno uint64) ([][]byte, error) {
	block := make([][]byte, 0, len(l.toBeSequenced))
	for _, item := range l.toBeSequenced {
		block = append(block, item)
	}
	block = codec.SortItems(block)
	if !l.CheckBlock(bno, block) {
		return nil, fmt.Errorf("%w: proposed block failed self-check", dlserr.ErrWrongBlockNumber)
	}
	return block, nil
}

// GetSequence returns every committed item across every block, in
// commit order.
func (l *Ledger) GetSequence() [][]byte {
	var out [][]byte
	for _, b := range l.oldBlocks {
		out = append(out, b...)
	}
	return out
}

// GetBlock returns the block this ledger committed as bno, if any. Since
// Bno only ever advances past bno once SetBlock(bno, ...) has succeeded,
// this is the ground truth for "what did we decide for block bno" —
// cheaper and more durable than reconstructing it from vote tallies that
// may have long since stopped accumulating.
func (l *Ledger) GetBlock(bno uint64) ([][]byte, bool) {
	if bno >= uint64(len(l.oldBlocks)) {
		return nil, false
	}
	return l.oldBlocks[bno], true
}
