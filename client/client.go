// Package client exposes the narrow API external callers use to submit
// items and read back the committed sequence, matching spec.md §6's
// put_sequence/get_sequence contract (see statemachine's own section
// header in the reference net.py for the split between the peer-facing
// wire protocol and this client-facing one).
package client

// API is what a caller that only wants to submit items and read the
// committed sequence needs from a running session. An out-of-process
// client would implement the same two operations by sending
// message.Put / message.Ask over the transport boundary and waiting for
// a reply; Inproc below implements it directly against a local driver.
type API interface {
	// PutSequence queues item for inclusion in a future block. It never
	// blocks on consensus completing; ordering relative to other peers'
	// concurrently queued items is decided by the protocol, not by the
	// caller.
	PutSequence(item []byte) error

	// GetSequence returns every block committed so far, oldest first,
	// flattened into the order items were sequenced.
	GetSequence() ([][]byte, error)
}

// driver is the subset of peer.Driver Inproc needs. Kept narrow so
// client doesn't import peer just to name a type in a field.
type driver interface {
	PutSequence(item []byte)
	GetSequence() [][]byte
}

// Inproc implements API directly against a peer.Driver running in the
// same process, for the CLI demo and tests where there is no real
// transport between the client and the peer it talks to.
type Inproc struct {
	d driver
}

// NewInproc wraps d as an API.
func NewInproc(d driver) *Inproc {
	return &Inproc{d: d}
}

func (c *Inproc) PutSequence(item []byte) error {
	c.d.PutSequence(item)
	return nil
}

func (c *Inproc) GetSequence() ([][]byte, error) {
	return c.d.GetSequence(), nil
}
