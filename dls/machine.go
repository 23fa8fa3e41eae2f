// Package dls implements the Dwork-Lynch-Stockmeyer partial-synchrony
// Byzantine consensus core: one Machine decides a single value out of a
// set of proposals tolerating f = floor((N-1)/3) Byzantine peers,
// grounded directly on the reference implementation's state machine
// (dlsconsensus/statemachine.py). It is intentionally single-threaded
// and lock-free: callers never invoke PutMessages, GetMessages, and
// ProcessRound concurrently for the same Machine (spec.md §5).
package dls

import (
	"fmt"
	"time"

	"github.com/gdanezis/dlsconsensus-go/codec"
	"github.com/gdanezis/dlsconsensus-go/dlserr"
	"github.com/gdanezis/dlsconsensus-go/log"
	"github.com/gdanezis/dlsconsensus-go/message"
	"github.com/gdanezis/dlsconsensus-go/metrics"
)

// RoundType is the phase-relative action a round performs, computed from
// round mod 4 (spec.md §4.2).
type RoundType uint8

const (
	Trying0 RoundType = iota
	Trying1
	Trying2
	LockRelease3
)

func (t RoundType) String() string {
	switch t {
	case Trying0:
		return "TRYING0"
	case Trying1:
		return "TRYING1"
	case Trying2:
		return "TRYING2"
	case LockRelease3:
		return "LOCKRELEASE3"
	default:
		return "UNKNOWN"
	}
}

// RawMaker turns a freshly built Internal message into its signed wire
// counterpart, populating the message's Raw field, before the Machine
// places it on the output buffer or folds it back into its own input
// buffer. It is supplied by the peer driver at construction time, which
// is the only layer that knows the channel, sender address, and private
// key needed to sign (spec.md §4.6).
type RawMaker func(message.Internal) (message.Internal, error)

// Machine is one DLS consensus instance deciding a single value.
type Machine struct {
	i   int
	vi  []byte
	n   int
	f   int

	allSeen map[string][]byte
	round   uint64
	locks   map[string]*message.Phase1Lock
	decision []byte

	bufIn  *message.Buffer
	bufOut *message.Buffer

	rawMaker RawMaker
	sinks    []Sink

	log log.Logger
	met *metrics.Set
}

// Option configures optional Machine dependencies.
type Option func(*Machine)

// WithLogger attaches a structured logger. Defaults to log.NoOp().
func WithLogger(l log.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithMetrics attaches a metrics.Set. A nil Set (the default) is safe:
// every metrics method tolerates a nil receiver.
func WithMetrics(s *metrics.Set) Option {
	return func(m *Machine) { m.met = s }
}

// New constructs a Machine proposing vi as peer index i of n, resuming
// at startRound, persisting checkpoints to sinks via rawMaker-signed
// messages. At least one sink is required (spec.md §4.2 "persist
// writes... to every backup sink"; config.New enforces this for
// production callers, but Machine itself re-checks since it has no
// other gate).
func New(vi []byte, i, n int, startRound uint64, rawMaker RawMaker, sinks []Sink, opts ...Option) (*Machine, error) {
	if n <= 0 {
		return nil, fmt.Errorf("dls: n must be positive, got %d", n)
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("dls: i must satisfy 0 <= i < n, got i=%d n=%d", i, n)
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("dls: at least one backup sink is required")
	}
	m := &Machine{
		i:        i,
		vi:       vi,
		n:        n,
		f:        (n - 1) / 3,
		allSeen:  map[string][]byte{string(vi): vi},
		round:    startRound,
		locks:    map[string]*message.Phase1Lock{},
		bufIn:    message.NewBuffer(),
		bufOut:   message.NewBuffer(),
		rawMaker: rawMaker,
		sinks:    sinks,
		log:      log.NoOp(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// N reports the committee size.
func (m *Machine) N() int { return m.n }

// F reports the Byzantine fault tolerance floor((N-1)/3).
func (m *Machine) F() int { return m.f }

// Round reports the current round number.
func (m *Machine) Round() uint64 { return m.round }

// GetLeader returns the leader index for round r: phase(r) mod N.
func (m *Machine) GetLeader(r uint64) int {
	return m.leaderForPhase(m.GetPhaseK(r))
}

// leaderForPhase returns the leader index for phase k directly, used
// where callers already have a phase number rather than a round.
func (m *Machine) leaderForPhase(k uint64) int {
	return int(k % uint64(m.n))
}

// GetPhaseK returns the phase number of round r: r div 4.
func (m *Machine) GetPhaseK(r uint64) uint64 { return r / 4 }

// GetRoundType returns the action round r performs: r mod 4.
func (m *Machine) GetRoundType(r uint64) RoundType {
	return RoundType(r % 4)
}

// GetDecision returns the decided item, or nil if none has been reached
// yet.
func (m *Machine) GetDecision() []byte { return m.decision }

// PutMessages enqueues msgs for processing on the next ProcessRound.
// Every message must have a Valid Kind and a Sender in [0, N); violating
// either is an API misuse error, not a silently dropped wire-level
// problem (spec.md §7: dlserr.ErrInvalidMessageType).
func (m *Machine) PutMessages(msgs []message.Internal) error {
	for _, msg := range msgs {
		if !msg.Kind().Valid() {
			return fmt.Errorf("%w: kind %v", dlserr.ErrInvalidMessageType, msg.Kind())
		}
		if msg.SenderID() < 0 || msg.SenderID() >= m.n {
			return fmt.Errorf("%w: sender %d out of [0,%d)", dlserr.ErrInvalidMessageType, msg.SenderID(), m.n)
		}
	}
	m.bufIn.Add(msgs...)
	return nil
}

// GetMessages drains and returns every message this Machine has produced
// since the last call.
func (m *Machine) GetMessages() []message.Internal {
	return m.bufOut.Drain()
}

// ProcessRound runs one round of the algorithm: the background sweep
// (findSeen, processReleaseLocks, clearOldMessages, processAcks)
// followed by the round-type-specific action, then persists a
// checkpoint. If advance is true the round counter increments; callers
// that want to replay the same round (e.g. after recovering from a
// checkpoint mid-phase) pass false. It returns the round number in
// effect after the call.
func (m *Machine) ProcessRound(advance bool) (uint64, error) {
	m.findSeen()
	if err := m.processReleaseLocks(); err != nil {
		return m.round, err
	}
	m.clearOldMessages()
	if err := m.processAcks(); err != nil {
		return m.round, err
	}

	var err error
	switch m.GetRoundType(m.round) {
	case Trying0:
		err = m.processTrying0()
	case Trying1:
		err = m.processTrying1()
	case Trying2:
		err = m.processTrying2()
	case LockRelease3:
		err = m.processLockRelease3()
	}
	if err != nil {
		return m.round, err
	}

	m.met.SetLocksHeld(len(m.locks))
	persistStart := time.Now()
	persistErr := m.Persist()
	m.met.ObserveCheckpointSeconds(time.Since(persistStart).Seconds())
	if persistErr != nil {
		m.log.Warn("checkpoint persist degraded", "round", m.round, "err", persistErr)
	}
	m.met.IncRoundsAdvanced()

	if advance {
		m.round++
	}
	return m.round, nil
}

// getAcceptable computes this peer's current ACCEPTABLE set: the decided
// item alone once decided; the single held lock's item once one lock is
// held; every item seen so far while no lock is held. Holding two or
// more locks simultaneously is impossible under <= f Byzantine peers and
// surfaces as ErrInvariantViolation if it's ever observed (spec.md §4.4).
func (m *Machine) getAcceptable() ([][]byte, error) {
	if m.decision != nil {
		return [][]byte{m.decision}, nil
	}
	switch len(m.locks) {
	case 0:
		items := make([][]byte, 0, len(m.allSeen))
		for _, v := range m.allSeen {
			items = append(items, v)
		}
		return codec.SortItems(items), nil
	case 1:
		for _, lock := range m.locks {
			return [][]byte{lock.Item}, nil
		}
	}
	return nil, fmt.Errorf("%w: holding %d locks simultaneously", dlserr.ErrInvariantViolation, len(m.locks))
}

// processTrying0 broadcasts this peer's current acceptable set for the
// phase round currently addresses.
func (m *Machine) processTrying0() error {
	acceptable, err := m.getAcceptable()
	if err != nil {
		return err
	}
	msg := &message.Phase0{
		Acceptable: acceptable,
		Phase:      m.GetPhaseK(m.round),
		Sender:     m.i,
	}
	return m.emit(msg, true)
}

// processTrying1 runs only for this phase's leader: it tallies PHASE0
// acceptable sets with at least N-f votes, prefers its own value vi if
// it qualifies, otherwise picks the maximum qualifying item under the
// deterministic total order, and broadcasts a PHASE1LOCK with the
// supporting evidence.
func (m *Machine) processTrying1() error {
	k := m.GetPhaseK(m.round)
	if m.i != m.GetLeader(m.round) {
		return nil
	}

	type tally struct {
		voters map[int]bool
		msgs   []*message.Phase0
		item   []byte
	}
	byItem := map[string]*tally{}
	for _, raw := range m.bufIn.All() {
		p0, ok := raw.(*message.Phase0)
		if !ok || p0.Phase != k {
			continue
		}
		for _, item := range p0.Acceptable {
			key := string(item)
			t := byItem[key]
			if t == nil {
				t = &tally{voters: map[int]bool{}, item: item}
				byItem[key] = t
			}
			if !t.voters[p0.Sender] {
				t.voters[p0.Sender] = true
				t.msgs = append(t.msgs, p0)
			}
		}
	}

	quorum := m.n - m.f
	var chosen *tally
	if self, ok := byItem[string(m.vi)]; ok && len(self.voters) >= quorum {
		chosen = self
	} else {
		for _, t := range byItem {
			if len(t.voters) < quorum {
				continue
			}
			if chosen == nil || codec.CompareItems(t.item, chosen.item) > 0 {
				chosen = t
			}
		}
	}
	if chosen == nil {
		return nil
	}

	msg := &message.Phase1Lock{
		Item:     chosen.item,
		Phase:    k,
		Evidence: chosen.msgs,
		Sender:   m.i,
	}
	return m.emit(msg, true)
}

// processTrying2 accepts any well-evidenced PHASE1LOCK for this phase,
// recording it as a held lock, and acknowledges it to the leader.
func (m *Machine) processTrying2() error {
	k := m.GetPhaseK(m.round)
	for _, raw := range m.bufIn.All() {
		lock, ok := raw.(*message.Phase1Lock)
		if !ok || lock.Phase != k {
			continue
		}
		if !m.checkPhase1Msg(lock) {
			continue
		}
		m.locks[string(lock.Item)] = lock

		ack := &message.Phase2Ack{
			Item:   lock.Item,
			Phase:  k,
			Sender: m.i,
		}
		if err := m.emit(ack, m.i == m.GetLeader(m.round)); err != nil {
			return err
		}
	}
	return nil
}

// processLockRelease3 re-broadcasts every lock this peer currently
// holds, so other peers can run processReleaseLocks against it.
func (m *Machine) processLockRelease3() error {
	k := m.GetPhaseK(m.round)
	for _, lock := range m.locks {
		rel := &message.Release3{
			Evidence: lock,
			Phase:    k,
			Sender:   m.i,
		}
		if err := m.emit(rel, true); err != nil {
			return err
		}
	}
	return nil
}

// emit signs msg via the configured RawMaker, places it on the output
// buffer, and optionally folds it back into the input buffer so this
// peer counts its own vote without waiting for a network round trip
// (spec.md §4.3: self-observation re-insertion).
func (m *Machine) emit(msg message.Internal, loopback bool) error {
	signed, err := m.rawMaker(msg)
	if err != nil {
		return fmt.Errorf("dls: signing %v: %w", msg.Kind(), err)
	}
	m.bufOut.Add(signed)
	if loopback {
		m.bufIn.Add(signed)
	}
	return nil
}

// checkPhase1Msg validates that lock was produced by the phase's leader
// and carries at least N-f distinct PHASE0 votes for Item at the same
// phase.
func (m *Machine) checkPhase1Msg(lock *message.Phase1Lock) bool {
	if lock.Sender != m.leaderForPhase(lock.Phase) {
		return false
	}
	voters := map[int]bool{}
	for _, e := range lock.Evidence {
		if e == nil || e.Phase != lock.Phase || !e.HasItem(lock.Item) {
			return false
		}
		voters[e.Sender] = true
	}
	return len(voters) >= m.n-m.f
}

// findSeen folds every item any peer has announced as acceptable into
// allSeen, which seeds this peer's own next ACCEPTABLE set once it holds
// no lock.
func (m *Machine) findSeen() {
	for _, raw := range m.bufIn.All() {
		p0, ok := raw.(*message.Phase0)
		if !ok {
			continue
		}
		for _, item := range p0.Acceptable {
			m.allSeen[string(item)] = item
		}
	}
}

// processReleaseLocks evicts locks that are older than (or, per the
// reference implementation's observed behavior, tied with) a
// well-evidenced RELEASE3 for a different item, letting the committee
// converge on a single surviving lock (spec.md §4.5).
func (m *Machine) processReleaseLocks() error {
	for _, raw := range m.bufIn.All() {
		rel, ok := raw.(*message.Release3)
		if !ok {
			continue
		}
		newLock := rel.Evidence
		if newLock == nil || !m.checkPhase1Msg(newLock) {
			continue
		}
		for key, old := range m.locks {
			if key == string(newLock.Item) {
				continue
			}
			if newLock.Phase >= old.Phase {
				delete(m.locks, key)
			}
		}
	}
	return nil
}

// clearOldMessages drops every input-buffer message whose phase has
// fallen behind the current phase, bounding memory use across a long
// run.
func (m *Machine) clearOldMessages() {
	k := m.GetPhaseK(m.round)
	m.bufIn.RemoveWhere(func(msg message.Internal) bool {
		return msg.PhaseNum() < k
	})
}

// processAcks tallies PHASE2ACKs addressed to this peer as leader and
// records a decision once N-f peers have acknowledged the same item. A
// second, different item reaching quorum afterward would contradict
// safety and is reported as ErrInvariantViolation rather than silently
// overwriting the decision.
func (m *Machine) processAcks() error {
	tallies := map[string]map[int]bool{}
	for _, raw := range m.bufIn.All() {
		ack, ok := raw.(*message.Phase2Ack)
		if !ok {
			continue
		}
		if m.leaderForPhase(ack.Phase) != m.i {
			continue
		}
		key := string(ack.Item)
		if tallies[key] == nil {
			tallies[key] = map[int]bool{}
		}
		tallies[key][ack.Sender] = true
	}
	for key, voters := range tallies {
		if len(voters) < m.n-m.f {
			continue
		}
		if m.decision != nil && string(m.decision) != key {
			return fmt.Errorf("%w: second decision for a different item", dlserr.ErrInvariantViolation)
		}
		if m.decision == nil {
			m.decision = []byte(key)
			m.met.IncDecisionsReached()
		}
	}
	return nil
}
