// Package peer drives a chained sequence of dls.Machine instances, one
// per block number, translating between the wire message variants that
// travel the network and the internal ones the state machine consumes.
// It is grounded on the reference implementation's dls_net_peer: "The
// state machine guarantees safety and liveness, but the actual messages
// it processes do not actually do authentication, and are not
// compressed. This networking library deals with the actual message
// formats, signatures, and efficiencies. It drives the state machine."
package peer

import (
	"fmt"
	"sort"

	"github.com/gdanezis/dlsconsensus-go/codec"
	"github.com/gdanezis/dlsconsensus-go/config"
	"github.com/gdanezis/dlsconsensus-go/dls"
	"github.com/gdanezis/dlsconsensus-go/ledger"
	"github.com/gdanezis/dlsconsensus-go/log"
	"github.com/gdanezis/dlsconsensus-go/message"
	"github.com/gdanezis/dlsconsensus-go/metrics"
	"github.com/gdanezis/dlsconsensus-go/signer"
)

// Outbound pairs a wire message with the single peer address it should
// be sent to.
type Outbound struct {
	Dest string
	Msg  message.Wire
}

// Driver owns one peer's view of a channel: the currently active DLS
// instance for the block it's working on, the ledger of committed and
// pending items, and the bookkeeping (decision votes, output queue)
// that exists only at the networked-message layer, never inside the
// state machine itself.
type Driver struct {
	i       int
	priv    signer.Key
	addrs   []string
	pubs    []signer.Key
	addrIdx map[string]int
	channel string
	round   uint64 // round the active machine last processed (or is about to)
	sinks   []dls.Sink

	currentBlockNo uint64
	machine        *dls.Machine
	decisions      map[uint64]map[string]*message.Decision // bno -> sender addr -> decision
	seq            *ledger.Ledger

	output map[string]Outbound

	log log.Logger
	met *metrics.Set
}

// Option configures optional Driver dependencies, mirroring dls.Option.
type Option func(*Driver)

// WithLogger attaches a structured logger. Defaults to log.NoOp().
func WithLogger(l log.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithMetrics attaches a metrics.Set.
func WithMetrics(s *metrics.Set) Option {
	return func(d *Driver) { d.met = s }
}

// New constructs a Driver for the session described by cfg, starting its
// first DLS instance at block 0 with an empty proposal.
func New(cfg config.Session, opts ...Option) (*Driver, error) {
	pubs := make([]signer.Key, len(cfg.PublicKeys))
	for i, k := range cfg.PublicKeys {
		pubs[i] = signer.Key(k)
	}
	addrIdx := make(map[string]int, len(cfg.Addrs))
	for i, a := range cfg.Addrs {
		addrIdx[a] = i
	}

	d := &Driver{
		i:         cfg.MyID,
		priv:      signer.Key(cfg.PrivateKey),
		addrs:     cfg.Addrs,
		pubs:      pubs,
		addrIdx:   addrIdx,
		channel:   cfg.Channel,
		round:     cfg.StartRound,
		sinks:     cfg.BackupSinks,
		decisions: map[uint64]map[string]*message.Decision{},
		seq:       ledger.New(),
		output:    map[string]Outbound{},
		log:       log.NoOp(),
	}
	for _, opt := range opts {
		opt(d)
	}

	vi, err := encodeBlock(nil)
	if err != nil {
		return nil, err
	}
	m, err := dls.New(vi, d.i, len(d.addrs), d.round, d.packageRaw, d.sinks, dls.WithLogger(d.log), dls.WithMetrics(d.met))
	if err != nil {
		return nil, err
	}
	d.machine = m
	return d, nil
}

// MyAddr returns this peer's own network address.
func (d *Driver) MyAddr() string { return d.addrs[d.i] }

// Round reports the driver's current round number.
func (d *Driver) Round() uint64 { return d.round }

// CurrentBlockNo reports the block number the active DLS instance is
// deciding.
func (d *Driver) CurrentBlockNo() uint64 { return d.currentBlockNo }

// GetSequence returns every item committed so far, across all blocks.
func (d *Driver) GetSequence() [][]byte { return d.seq.GetSequence() }

// PutSequence schedules item for inclusion in a future block.
func (d *Driver) PutSequence(item []byte) { d.seq.PutItem(item) }

// iAmLeader reports whether this peer leads round r.
func (d *Driver) iAmLeader(r uint64) bool { return d.machine.GetLeader(r) == d.i }

func (d *Driver) allOthers() []string {
	out := make([]string, 0, len(d.addrs)-1)
	for idx, a := range d.addrs {
		if idx != d.i {
			out = append(out, a)
		}
	}
	return out
}

func (d *Driver) queueOutput(dest string, w message.Wire) {
	raw, err := message.Encode(w)
	key := dest
	if err == nil {
		key = dest + "|" + string(raw)
	}
	d.output[key] = Outbound{Dest: dest, Msg: w}
}

// packageRaw is the dls.RawMaker this driver supplies to every
// dls.Machine it builds: it turns an internal message just produced by
// the state machine into its signed wire counterpart, which is then
// both what other peers receive and what this peer keeps as Raw for
// later re-emission after a restart.
func (d *Driver) packageRaw(msg message.Internal) (message.Internal, error) {
	switch m := msg.(type) {
	case *message.Phase0:
		if m.Raw != nil {
			return m, nil
		}
		blocks := make([][][]byte, len(m.Acceptable))
		for i, item := range m.Acceptable {
			blk, err := decodeBlock(item)
			if err != nil {
				return nil, fmt.Errorf("peer: decoding acceptable block: %w", err)
			}
			blocks[i] = blk
		}
		w := &message.Acceptable{
			Channel: d.channel,
			Sender:  d.MyAddr(),
			Bno:     d.currentBlockNo,
			Phase:   m.Phase,
			Blocks:  blocks,
		}
		if err := signer.Sign(d.priv, w); err != nil {
			return nil, err
		}
		m.Raw = w
		return m, nil

	case *message.Phase1Lock:
		if m.Raw != nil {
			return m, nil
		}
		block, err := decodeBlock(m.Item)
		if err != nil {
			return nil, fmt.Errorf("peer: decoding lock block: %w", err)
		}
		evidence := make([]*message.Acceptable, len(m.Evidence))
		for i, e := range m.Evidence {
			if e.Raw == nil {
				return nil, fmt.Errorf("peer: phase1lock evidence missing raw acceptable")
			}
			evidence[i] = e.Raw
		}
		sort.Slice(evidence, func(i, j int) bool {
			bi, _ := message.Encode(evidence[i])
			bj, _ := message.Encode(evidence[j])
			return codec.CompareItems(bi, bj) < 0
		})
		w := &message.Lock{
			Channel:  d.channel,
			Sender:   d.MyAddr(),
			Bno:      d.currentBlockNo,
			Phase:    m.Phase,
			Block:    block,
			Evidence: evidence,
		}
		if err := signer.Sign(d.priv, w); err != nil {
			return nil, err
		}
		m.Raw = w
		return m, nil

	case *message.Phase2Ack:
		if m.Raw != nil {
			return m, nil
		}
		block, err := decodeBlock(m.Item)
		if err != nil {
			return nil, fmt.Errorf("peer: decoding ack block: %w", err)
		}
		w := &message.Ack{
			Channel: d.channel,
			Sender:  d.MyAddr(),
			Bno:     d.currentBlockNo,
			Phase:   m.Phase,
			Block:   block,
		}
		if err := signer.Sign(d.priv, w); err != nil {
			return nil, err
		}
		m.Raw = w
		return m, nil

	case *message.Release3:
		// RELEASE3's raw is simply the embedded PHASE1LOCK's raw: it
		// carries no information beyond re-announcing an already-signed
		// lock, so it needs no signature of its own.
		if m.Evidence.Raw == nil {
			return nil, fmt.Errorf("peer: release3 evidence missing raw lock")
		}
		m.Raw = m.Evidence.Raw
		return m, nil

	default:
		return nil, fmt.Errorf("peer: packageRaw: unknown internal type %T", msg)
	}
}

// decodeRaw turns an authenticated wire message into the zero or more
// internal messages it yields for the active state machine, verifying
// the sender's signature first and dropping (never erroring) anything
// that fails verification or doesn't parse as expected — wire-level
// problems are policy drops, not API errors (spec.md §7).
func (d *Driver) decodeRaw(w message.Wire) []message.Internal {
	senderIdx, ok := d.addrIdx[w.SenderAddr()]
	if !ok {
		d.met.IncDropped(metrics.ReasonMalformed)
		return nil
	}

	switch msg := w.(type) {
	case *message.Decision:
		if !signer.Verify(d.pubs[senderIdx], msg) {
			d.met.IncDropped(metrics.ReasonBadSignature)
			return nil
		}
		d.recordDecision(msg)
		if msg.Bno != d.currentBlockNo {
			return nil
		}
		item, err := encodeBlock(msg.Block)
		if err != nil {
			return nil
		}
		phase := d.machine.GetPhaseK(d.round)
		return []message.Internal{
			&message.Phase0{Acceptable: [][]byte{item}, Phase: phase, Sender: senderIdx, Raw: nil},
			&message.Phase2Ack{Item: item, Phase: phase, Sender: senderIdx, Raw: nil},
		}

	case *message.Acceptable:
		if !signer.Verify(d.pubs[senderIdx], msg) {
			d.met.IncDropped(metrics.ReasonBadSignature)
			return nil
		}
		items := make([][]byte, len(msg.Blocks))
		for i, blk := range msg.Blocks {
			enc, err := encodeBlock(blk)
			if err != nil {
				d.met.IncDropped(metrics.ReasonMalformed)
				return nil
			}
			items[i] = enc
		}
		return []message.Internal{
			&message.Phase0{Acceptable: items, Phase: msg.Phase, Sender: senderIdx, Raw: msg},
		}

	case *message.Lock:
		if !signer.Verify(d.pubs[senderIdx], msg) {
			d.met.IncDropped(metrics.ReasonBadSignature)
			return nil
		}
		evidence := make([]*message.Phase0, 0, len(msg.Evidence))
		for _, e := range msg.Evidence {
			inner := d.decodeRaw(e)
			var p0 *message.Phase0
			for _, m := range inner {
				if pp, ok := m.(*message.Phase0); ok {
					p0 = pp
					break
				}
			}
			if p0 == nil {
				d.met.IncDropped(metrics.ReasonInvalidEvidence)
				return nil
			}
			evidence = append(evidence, p0)
		}
		item, err := encodeBlock(msg.Block)
		if err != nil {
			d.met.IncDropped(metrics.ReasonMalformed)
			return nil
		}
		lock := &message.Phase1Lock{Item: item, Phase: msg.Phase, Evidence: evidence, Sender: senderIdx, Raw: msg}
		release := &message.Release3{Evidence: lock, Phase: msg.Phase, Sender: senderIdx, Raw: msg}
		return []message.Internal{lock, release}

	case *message.Ack:
		if !signer.Verify(d.pubs[senderIdx], msg) {
			d.met.IncDropped(metrics.ReasonBadSignature)
			return nil
		}
		item, err := encodeBlock(msg.Block)
		if err != nil {
			d.met.IncDropped(metrics.ReasonMalformed)
			return nil
		}
		return []message.Internal{
			&message.Phase2Ack{Item: item, Phase: msg.Phase, Sender: senderIdx, Raw: msg},
		}

	default:
		d.met.IncDropped(metrics.ReasonMalformed)
		return nil
	}
}

func (d *Driver) recordDecision(msg *message.Decision) {
	byBno := d.decisions[msg.Bno]
	if byBno == nil {
		byBno = map[string]*message.Decision{}
		d.decisions[msg.Bno] = byBno
	}
	if _, ok := byBno[msg.Sender]; !ok {
		byBno[msg.Sender] = msg
	}
}

// HasQuorum reports the block value a N-f majority of recorded decisions
// for bno agree on, or nil if no such majority exists yet.
func (d *Driver) HasQuorum(bno uint64) [][]byte {
	byBno := d.decisions[bno]
	if len(byBno) == 0 {
		return nil
	}
	tally := map[string]int{}
	blocks := map[string][][]byte{}
	for _, dec := range byBno {
		key := string(mustEncode(dec.Block))
		tally[key]++
		blocks[key] = dec.Block
	}
	var bestKey string
	bestVotes := 0
	for key, votes := range tally {
		if votes > bestVotes {
			bestVotes = votes
			bestKey = key
		}
	}
	quorum := len(d.addrs) - d.machine.F()
	if bestVotes >= quorum {
		return blocks[bestKey]
	}
	return nil
}

func mustEncode(block [][]byte) []byte {
	b, err := encodeBlock(block)
	if err != nil {
		return nil
	}
	return b
}

// buildDecisions returns this peer's own signed DECISION for bno, first
// minting and recording it if it hasn't already, once a value for bno is
// known (either from this peer's own ledger for an already-committed
// past block, or the active machine's own decision for the current
// one). A past block's value comes from the ledger rather than from
// d.decisions' vote tally: currentBlockNo only ever advances in lockstep
// with a successful ledger commit, so the ledger is always the
// authoritative record for any bno < currentBlockNo, whereas votes for
// an old block may never have fully accumulated (or may have been
// pruned) by the time someone asks about it. For a block ahead of
// currentBlockNo this peer has no value of its own, so it returns only the
// decisions it has already recorded from other peers for that block.
func (d *Driver) buildDecisions(bno uint64) ([]*message.Decision, error) {
	var val [][]byte
	switch {
	case bno < d.currentBlockNo:
		block, ok := d.seq.GetBlock(bno)
		if !ok {
			return nil, nil
		}
		val = block
	case bno == d.currentBlockNo && d.machine.GetDecision() != nil:
		block, err := decodeBlock(d.machine.GetDecision())
		if err != nil {
			return nil, err
		}
		val = block
	case bno > d.currentBlockNo:
		recorded := make([]*message.Decision, 0, len(d.decisions[bno]))
		for _, dec := range d.decisions[bno] {
			recorded = append(recorded, dec)
		}
		return recorded, nil
	default:
		return nil, nil
	}
	if val == nil {
		return nil, nil
	}

	byBno := d.decisions[bno]
	if byBno == nil {
		byBno = map[string]*message.Decision{}
		d.decisions[bno] = byBno
	}
	if _, already := byBno[d.MyAddr()]; !already {
		own := &message.Decision{Channel: d.channel, Sender: d.MyAddr(), Bno: bno, Block: val}
		if err := signer.Sign(d.priv, own); err != nil {
			return nil, err
		}
		byBno[d.MyAddr()] = own
	}

	out := make([]*message.Decision, 0, len(byBno))
	for _, dec := range byBno {
		out = append(out, dec)
	}
	return out, nil
}

// PutMessages routes inbound wire messages: client PUTs feed the
// ledger directly, ACCEPTABLE blocks are learned by the ledger as
// pending items, and anything addressed to a block other than the current
// one (or to the current block once it is decided) is answered with a
// replay of the decisions this peer holds for that block rather than
// handed to the state machine (spec.md §4.5).
func (d *Driver) PutMessages(msgs []message.Wire) error {
	for _, w := range msgs {
		if w.ChannelID() != d.channel {
			continue
		}

		if put, ok := w.(*message.Put); ok {
			d.seq.PutItem(put.Item)
			continue
		}

		var bno uint64
		switch m := w.(type) {
		case *message.Acceptable:
			bno = m.Bno
			for _, blk := range m.Blocks {
				for _, item := range blk {
					d.seq.PutItem(item)
				}
			}
		case *message.Lock:
			bno = m.Bno
		case *message.Ack:
			bno = m.Bno
		case *message.Ask:
			bno = m.Bno
		case *message.Decision:
			in := d.decodeRaw(w)
			if err := d.machine.PutMessages(in); err != nil {
				return err
			}
			continue
		default:
			d.met.IncDropped(metrics.ReasonMalformed)
			continue
		}

		hasDecision := (bno == d.currentBlockNo && d.machine.GetDecision() != nil) || bno != d.currentBlockNo
		if hasDecision {
			decisions, err := d.buildDecisions(bno)
			if err != nil {
				return err
			}
			for _, dec := range decisions {
				d.queueOutput(w.SenderAddr(), dec)
			}
			continue
		}

		if _, isAsk := w.(*message.Ask); isAsk {
			// No decision to replay yet; nothing else to do with an ASK.
			continue
		}

		in := d.decodeRaw(w)
		if err := d.machine.PutMessages(in); err != nil {
			return err
		}
	}
	return nil
}

// GetMessages drains the state machine's output buffer, addresses each
// message (followers send only to the current leader; the leader
// broadcasts to everyone), and returns the queued wire messages along
// with anything already queued by PutMessages's decision-replay path.
func (d *Driver) GetMessages() []Outbound {
	buf := d.machine.GetMessages()

	var receivers []string
	if d.iAmLeader(d.round) {
		receivers = d.allOthers()
	} else {
		receivers = []string{d.addrs[d.machine.GetLeader(d.round)]}
	}

	for _, internal := range buf {
		raw := rawOf(internal)
		if raw == nil {
			continue
		}
		for _, dest := range receivers {
			d.queueOutput(dest, raw)
		}
	}

	out := make([]Outbound, 0, len(d.output))
	for _, o := range d.output {
		out = append(out, o)
	}
	d.output = map[string]Outbound{}
	return out
}

func rawOf(m message.Internal) message.Wire {
	switch v := m.(type) {
	case *message.Phase0:
		return v.Raw
	case *message.Phase1Lock:
		return v.Raw
	case *message.Phase2Ack:
		return v.Raw
	case *message.Release3:
		return v.Raw
	default:
		return nil
	}
}

// AdvanceRound moves the protocol forward by one round: if the active
// block hasn't reached a decision yet, previously recorded decisions are
// replayed into the state machine so a lagging peer can catch up;
// otherwise the decided block is committed to the ledger, broadcast to
// every other peer, and a fresh state machine is built to decide the
// next block.
func (d *Driver) AdvanceRound() error {
	if d.HasQuorum(d.currentBlockNo) == nil {
		var replay []message.Wire
		for _, dec := range d.decisions[d.currentBlockNo] {
			replay = append(replay, dec)
		}
		if err := d.PutMessages(replay); err != nil {
			return err
		}
	} else {
		decision := d.HasQuorum(d.currentBlockNo)
		if err := d.seq.SetBlock(d.currentBlockNo, decision); err != nil {
			return err
		}

		decisions, err := d.buildDecisions(d.currentBlockNo)
		if err != nil {
			return err
		}
		for _, dec := range decisions {
			for _, dest := range d.allOthers() {
				d.queueOutput(dest, dec)
			}
		}

		nextRound := d.machine.Round()
		d.currentBlockNo++
		proposal, err := d.seq.NewBlock(d.currentBlockNo)
		if err != nil {
			return err
		}
		vi, err := encodeBlock(proposal)
		if err != nil {
			return err
		}
		m, err := dls.New(vi, d.i, len(d.addrs), nextRound, d.packageRaw, d.sinks, dls.WithLogger(d.log), dls.WithMetrics(d.met))
		if err != nil {
			return err
		}
		d.machine = m
	}

	// Record the round about to be processed so GetMessages addresses
	// this round's leader, not whatever round the machine advances to.
	d.round = d.machine.Round()
	_, err := d.machine.ProcessRound(true)
	return err
}
