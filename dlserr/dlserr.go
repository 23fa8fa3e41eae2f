// Package dlserr defines the sentinel errors spec.md §7 assigns to API
// misuse and fatal conditions. Wire-level problems (bad signature, wrong
// channel, malformed bytes, insufficient evidence) are dropped silently by
// policy and never surface as one of these — they are only visible through
// metrics and logs.
package dlserr

import "errors"

var (
	// ErrWrongBlockNumber is returned by the sequence ledger's SetBlock
	// when the caller names a block number other than the next expected
	// one.
	ErrWrongBlockNumber = errors.New("dls: wrong block number")

	// ErrCheckpointDrift is returned by Recover(justCheck=true) when the
	// in-memory checkpoint tuple does not match what was persisted.
	ErrCheckpointDrift = errors.New("dls: checkpoint drift")

	// ErrRecoveryFailed is returned by Recover when every backup sink is
	// unreadable or checksum-corrupt.
	ErrRecoveryFailed = errors.New("dls: recovery failed: no sink survived")

	// ErrPersistFailed is returned by Persist when every backup sink
	// rejected the write. It is distinct from ErrCheckpointDrift, which
	// diagnoses a content mismatch on a successful read, not a write
	// failure.
	ErrPersistFailed = errors.New("dls: persist failed: no sink survived")

	// ErrInvalidMessageType is returned by Machine.PutMessages when a
	// caller hands it a message whose Kind isn't one of the four internal
	// variants, or whose Sender is out of [0, N).
	ErrInvalidMessageType = errors.New("dls: invalid internal message")

	// ErrInvariantViolation marks a condition the protocol proves cannot
	// happen under <= f Byzantine peers (e.g. two simultaneous locks
	// surviving a full release sweep). Seeing it means this peer's own
	// bookkeeping is broken, not that a remote peer misbehaved.
	ErrInvariantViolation = errors.New("dls: invariant violation")
)
