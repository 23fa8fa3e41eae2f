// Package config builds and validates the session configuration a peer
// driver is constructed from, following the teacher's builder/validator
// split (see config.Config and its Validate/Parse methods in the
// reference codebase) rather than letting construction code hand-roll
// field checks inline.
package config

import "github.com/gdanezis/dlsconsensus-go/dls"

// Session is the sole construction input for a peer.Driver. It carries
// everything the DLS core and the driver's wire layer need to know about
// the committee this process participates in: its own index and key
// material, the full peer address list, the channel this process drives
// consensus for, the round to resume at, and where to checkpoint to.
type Session struct {
	// MyID is this process's index into Addrs / PublicKeys, 0 <= MyID < N.
	MyID int

	// PrivateKey signs this peer's outbound wire messages.
	PrivateKey []byte

	// PublicKeys holds the verification key for peer j at PublicKeys[j].
	// len(PublicKeys) must equal len(Addrs); together they fix N.
	PublicKeys [][]byte

	// Addrs holds the network address for peer j at Addrs[j].
	Addrs []string

	// Channel identifies the chained block-number sequence this session
	// drives; wire messages for another channel are dropped, not routed.
	Channel string

	// StartRound is the round the state machine resumes at absent a
	// successful checkpoint recovery.
	StartRound uint64

	// BackupSinks are the durable stores persist/recover write to and
	// read from. At least one is required.
	BackupSinks []dls.Sink
}

// N returns the committee size implied by Addrs.
func (s Session) N() int { return len(s.Addrs) }

// F returns the maximum number of Byzantine peers this committee
// tolerates: floor((N-1)/3).
func (s Session) F() int { return (s.N() - 1) / 3 }

// New validates raw and returns it unchanged as a Session once every
// invariant a peer.Driver relies on holds. Validation failures are
// reported as one of the config sentinel errors, never a generic error
// string, so callers can match on cause.
func New(raw Session) (Session, error) {
	if len(raw.Addrs) == 0 {
		return Session{}, ErrEmptyAddrs
	}
	if len(raw.PublicKeys) != len(raw.Addrs) {
		return Session{}, ErrAddrPubMismatch
	}
	if raw.MyID < 0 || raw.MyID >= len(raw.Addrs) {
		return Session{}, ErrMyIDOutOfRange
	}
	if raw.Channel == "" {
		return Session{}, ErrEmptyChannel
	}
	if len(raw.BackupSinks) == 0 {
		return Session{}, ErrNoBackupSinks
	}
	seen := make(map[string]struct{}, len(raw.Addrs))
	for _, a := range raw.Addrs {
		if _, ok := seen[a]; ok {
			return Session{}, ErrDuplicateAddr
		}
		seen[a] = struct{}{}
	}
	return raw, nil
}
