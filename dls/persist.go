package dls

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"sort"

	"github.com/gdanezis/dlsconsensus-go/codec"
	"github.com/gdanezis/dlsconsensus-go/dlserr"
	"github.com/gdanezis/dlsconsensus-go/message"
)

// tagCheckpoint is the codec tag for a persisted Machine snapshot. It
// lives in its own numeric range, disjoint from message.Tag*, since
// checkpoints never cross the wire.
const tagCheckpoint codec.Tag = 100

const checksumLen = 16

// Sink is the durable backing store Persist writes to and Recover reads
// from. It matches the subset of *os.File a peer needs: truncate the
// previous checkpoint, rewrite it from the start, and flush before
// returning, mirroring the reference implementation's
// truncate-then-write-then-flush checkpoint discipline.
type Sink interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
	Sync() error
}

type checkpointTuple struct {
	I           int
	Vi          []byte
	N           int
	AllSeen     [][]byte
	Round       uint64
	HasDecision bool
	Decision    []byte
	Locks       []lockRecord
}

type lockRecord struct {
	Item     []byte
	Phase    uint64
	Sender   int
	Evidence []phase0Record
	Raw      []byte
}

type phase0Record struct {
	Acceptable [][]byte
	Phase      uint64
	Sender     int
	Raw        []byte
}

func (m *Machine) snapshot() checkpointTuple {
	seen := make([][]byte, 0, len(m.allSeen))
	for _, v := range m.allSeen {
		seen = append(seen, v)
	}
	locks := make([]lockRecord, 0, len(m.locks))
	for _, l := range m.locks {
		locks = append(locks, toLockRecord(l))
	}
	sort.Slice(locks, func(i, j int) bool { return codec.CompareItems(locks[i].Item, locks[j].Item) < 0 })

	return checkpointTuple{
		I:           m.i,
		Vi:          m.vi,
		N:           m.n,
		AllSeen:     codec.SortItems(seen),
		Round:       m.round,
		HasDecision: m.decision != nil,
		Decision:    m.decision,
		Locks:       locks,
	}
}

func toLockRecord(l *message.Phase1Lock) lockRecord {
	rec := lockRecord{Item: l.Item, Phase: l.Phase, Sender: l.Sender}
	for _, e := range l.Evidence {
		rec.Evidence = append(rec.Evidence, toPhase0Record(e))
	}
	if l.Raw != nil {
		if b, err := message.Encode(l.Raw); err == nil {
			rec.Raw = b
		}
	}
	return rec
}

func toPhase0Record(p *message.Phase0) phase0Record {
	rec := phase0Record{Acceptable: p.Acceptable, Phase: p.Phase, Sender: p.Sender}
	if p.Raw != nil {
		if b, err := message.Encode(p.Raw); err == nil {
			rec.Raw = b
		}
	}
	return rec
}

func fromLockRecord(rec lockRecord) *message.Phase1Lock {
	l := &message.Phase1Lock{Item: rec.Item, Phase: rec.Phase, Sender: rec.Sender}
	for _, e := range rec.Evidence {
		l.Evidence = append(l.Evidence, fromPhase0Record(e))
	}
	if len(rec.Raw) > 0 {
		if w, err := message.Decode(rec.Raw); err == nil {
			if lockWire, ok := w.(*message.Lock); ok {
				l.Raw = lockWire
			}
		}
	}
	return l
}

func fromPhase0Record(rec phase0Record) *message.Phase0 {
	p := &message.Phase0{Acceptable: rec.Acceptable, Phase: rec.Phase, Sender: rec.Sender}
	if len(rec.Raw) > 0 {
		if w, err := message.Decode(rec.Raw); err == nil {
			if accWire, ok := w.(*message.Acceptable); ok {
				p.Raw = accWire
			}
		}
	}
	return p
}

// Persist writes the current checkpoint to every configured sink. It
// keeps going after a sink fails so a single unavailable backup doesn't
// block the others, and only returns an error once every sink has
// failed (spec.md §4.2: checkpoint I/O degrades gracefully as long as
// one sink survives).
func (m *Machine) Persist() error {
	packed, err := pack(m.snapshot())
	if err != nil {
		return fmt.Errorf("dls: encoding checkpoint: %w", err)
	}

	survivors := 0
	for idx, sink := range m.sinks {
		if err := writeSink(sink, packed); err != nil {
			m.log.Warn("checkpoint sink write failed", "sink", idx, "err", err)
			continue
		}
		survivors++
	}
	if survivors == 0 {
		return fmt.Errorf("dls: persist: %w", dlserr.ErrPersistFailed)
	}
	return nil
}

// Recover reconstructs in-memory state from the highest-round valid
// checkpoint among the configured sinks. With justCheck true it instead
// verifies the in-memory state already matches that checkpoint, without
// mutating anything, returning ErrCheckpointDrift on any mismatch. It
// returns ErrRecoveryFailed if no sink holds a readable, checksum-valid
// checkpoint.
func (m *Machine) Recover(justCheck bool) error {
	var best *checkpointTuple
	for idx, sink := range m.sinks {
		tup, err := readSink(sink)
		if err != nil {
			m.log.Warn("checkpoint sink read failed", "sink", idx, "err", err)
			continue
		}
		if best == nil || tup.Round > best.Round {
			best = tup
		}
	}
	if best == nil {
		return dlserr.ErrRecoveryFailed
	}

	if justCheck {
		mine, err := codec.PackValue(tagCheckpoint, m.snapshot())
		if err != nil {
			return fmt.Errorf("dls: encoding in-memory checkpoint: %w", err)
		}
		theirs, err := codec.PackValue(tagCheckpoint, *best)
		if err != nil {
			return fmt.Errorf("dls: encoding recovered checkpoint: %w", err)
		}
		if !bytes.Equal(mine, theirs) {
			return dlserr.ErrCheckpointDrift
		}
		return nil
	}

	m.i = best.I
	m.vi = best.Vi
	m.n = best.N
	m.f = (best.N - 1) / 3
	m.round = best.Round
	if best.HasDecision {
		m.decision = best.Decision
	} else {
		m.decision = nil
	}
	m.allSeen = make(map[string][]byte, len(best.AllSeen))
	for _, item := range best.AllSeen {
		m.allSeen[string(item)] = item
	}
	m.locks = make(map[string]*message.Phase1Lock, len(best.Locks))
	for _, rec := range best.Locks {
		l := fromLockRecord(rec)
		m.locks[string(l.Item)] = l
	}
	return nil
}

func pack(t checkpointTuple) ([]byte, error) {
	body, err := codec.PackValue(tagCheckpoint, t)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(body)
	return append(body, sum[:checksumLen]...), nil
}

func writeSink(sink Sink, packed []byte) error {
	if err := sink.Truncate(0); err != nil {
		return err
	}
	if _, err := sink.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := sink.Write(packed); err != nil {
		return err
	}
	return sink.Sync()
}

func readSink(sink Sink) (*checkpointTuple, error) {
	if _, err := sink.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(sink)
	if err != nil {
		return nil, err
	}
	if len(data) < checksumLen {
		return nil, fmt.Errorf("dls: checkpoint too short")
	}
	body, sum := data[:len(data)-checksumLen], data[len(data)-checksumLen:]
	want := sha256.Sum256(body)
	if string(want[:checksumLen]) != string(sum) {
		return nil, fmt.Errorf("dls: checkpoint checksum mismatch")
	}
	var t checkpointTuple
	if err := codec.UnpackValue(body, tagCheckpoint, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
