package message

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Internal is implemented by the four message variants the DLS state
// machine's input/output buffers hold. Two internal messages with equal
// logical fields but different Raw are equal for buffer purposes — Key
// excludes Raw for exactly that reason (spec.md §3: "content-equality by
// logical fields, not by raw bytes").
type Internal interface {
	Kind() Kind
	Key() string
	SenderID() int
	PhaseNum() uint64
}

// Phase0 is a peer's acceptable set announcement for phase Phase.
type Phase0 struct {
	Acceptable [][]byte
	Phase      uint64
	Sender     int
	Raw        *Acceptable
}

func (m *Phase0) Kind() Kind      { return KindPhase0 }
func (m *Phase0) SenderID() int   { return m.Sender }
func (m *Phase0) PhaseNum() uint64 { return m.Phase }
func (m *Phase0) Key() string {
	return digest("P0", m.Sender, m.Phase, sortedDigest(m.Acceptable))
}

// HasItem reports whether item appears in the acceptable set.
func (m *Phase0) HasItem(item []byte) bool {
	for _, a := range m.Acceptable {
		if bytes.Equal(a, item) {
			return true
		}
	}
	return false
}

// Phase1Lock is the leader's PHASE1LOCK: a chosen item plus the PHASE0
// evidence proving N-f peers would accept it at this phase.
type Phase1Lock struct {
	Item     []byte
	Phase    uint64
	Evidence []*Phase0
	Sender   int
	Raw      *Lock
}

func (m *Phase1Lock) Kind() Kind      { return KindPhase1Lock }
func (m *Phase1Lock) SenderID() int   { return m.Sender }
func (m *Phase1Lock) PhaseNum() uint64 { return m.Phase }
func (m *Phase1Lock) Key() string {
	evKeys := make([]string, len(m.Evidence))
	for i, e := range m.Evidence {
		evKeys[i] = e.Key()
	}
	sort.Strings(evKeys)
	return digest("P1", m.Sender, m.Phase, string(m.Item), evKeys)
}

// Phase2Ack is a follower's acknowledgement of a lock on Item at Phase.
type Phase2Ack struct {
	Item   []byte
	Phase  uint64
	Sender int
	Raw    *Ack
}

func (m *Phase2Ack) Kind() Kind      { return KindPhase2Ack }
func (m *Phase2Ack) SenderID() int   { return m.Sender }
func (m *Phase2Ack) PhaseNum() uint64 { return m.Phase }
func (m *Phase2Ack) Key() string {
	return digest("P2", m.Sender, m.Phase, string(m.Item))
}

// Release3 re-broadcasts a held lock so other peers can evict older
// conflicting locks. Its Raw is always the embedded lock's Raw (spec.md
// §4.5: "RELEASE3's raw is simply the embedded PHASE1LOCK's raw").
type Release3 struct {
	Evidence *Phase1Lock
	Phase    uint64
	Sender   int
	Raw      *Lock
}

func (m *Release3) Kind() Kind      { return KindRelease3 }
func (m *Release3) SenderID() int   { return m.Sender }
func (m *Release3) PhaseNum() uint64 { return m.Phase }
func (m *Release3) Key() string {
	return digest("P3", m.Sender, m.Phase, m.Evidence.Key())
}

func digest(parts ...any) string {
	h := sha256.New()
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			h.Write([]byte(v))
		case int:
			h.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
		case uint64:
			for i := 7; i >= 0; i-- {
				h.Write([]byte{byte(v >> (8 * uint(i)))})
			}
		case []string:
			for _, s := range v {
				h.Write([]byte(s))
				h.Write([]byte{0})
			}
		default:
			panic("message: digest: unsupported part type")
		}
		h.Write([]byte{0xff})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedDigest(items [][]byte) string {
	cp := make([][]byte, len(items))
	copy(cp, items)
	sort.Slice(cp, func(i, j int) bool { return bytes.Compare(cp[i], cp[j]) < 0 })
	h := sha256.New()
	for _, it := range cp {
		h.Write(it)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Buffer is a set of Internal messages deduplicated by Key, modeling the
// Python reference's `set()` buffers (spec.md §5: "inside the input
// buffer set semantics apply (content-equal messages dedupe)").
type Buffer struct {
	items map[string]Internal
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{items: make(map[string]Internal)}
}

// Add inserts msgs, silently deduplicating by logical content.
func (b *Buffer) Add(msgs ...Internal) {
	for _, m := range msgs {
		b.items[m.Key()] = m
	}
}

// All returns a snapshot of the buffer's contents without clearing it, in
// no particular order — callers that need determinism should sort.
func (b *Buffer) All() []Internal {
	out := make([]Internal, 0, len(b.items))
	for _, m := range b.items {
		out = append(out, m)
	}
	return out
}

// Drain returns the buffer's contents and clears it, used for the output
// buffer's get_messages semantics.
func (b *Buffer) Drain() []Internal {
	out := b.All()
	b.items = make(map[string]Internal)
	return out
}

// RemoveWhere deletes every message for which pred returns true.
func (b *Buffer) RemoveWhere(pred func(Internal) bool) {
	for k, m := range b.items {
		if pred(m) {
			delete(b.items, k)
		}
	}
}

// Len reports the number of distinct messages currently buffered.
func (b *Buffer) Len() int { return len(b.items) }
