package message

import (
	"fmt"

	"github.com/gdanezis/dlsconsensus-go/codec"
)

// Wire tag numbers registered with the codec. These are the "closed tag
// set" spec.md §6 requires receivers to enforce: any other tag is dropped
// as an unknown variant.
const (
	TagAcceptable codec.Tag = iota + 1
	TagLock
	TagAck
	TagDecision
	TagPut
	TagAsk
)

// Wire is implemented by every message that travels on the wire. Channel
// and Tag let a receiver filter on channel_id and dispatch on variant
// before doing any further decoding, per spec.md §6.
type Wire interface {
	Tag() codec.Tag
	ChannelID() string
	SenderAddr() string
}

// Signable is the subset of Wire the Signer operates over: the payload to
// authenticate is codec.Pack of every field except the signature itself,
// concatenated with the claimed sender identity (spec.md §4.2: "over
// codec.pack(msg_without_sig ++ sender_identity)").
type Signable interface {
	Wire
	SignPayload() ([]byte, error)
	Signature() []byte
	SetSignature(sig []byte)
}

func signPayload(w Signable, fieldsWithoutSig []any) ([]byte, error) {
	packed, err := codec.Pack(w.Tag(), fieldsWithoutSig)
	if err != nil {
		return nil, err
	}
	return append(packed, []byte(w.SenderAddr())...), nil
}

// Acceptable carries a peer's PHASE0 acceptable set lifted to the block
// level: a set of candidate blocks, each itself a set of items.
type Acceptable struct {
	Channel string
	Sender  string
	Bno     uint64
	Phase   uint64
	Blocks  [][][]byte
	Sig     []byte
}

func (m *Acceptable) Tag() codec.Tag      { return TagAcceptable }
func (m *Acceptable) ChannelID() string   { return m.Channel }
func (m *Acceptable) SenderAddr() string  { return m.Sender }
func (m *Acceptable) Signature() []byte   { return m.Sig }
func (m *Acceptable) SetSignature(s []byte) { m.Sig = s }
func (m *Acceptable) fieldsWithoutSig() []any {
	return []any{m.Channel, uint8(WireAcceptable), m.Sender, m.Bno, m.Phase, codec.SortBlocks(m.Blocks)}
}
func (m *Acceptable) SignPayload() ([]byte, error) { return signPayload(m, m.fieldsWithoutSig()) }

// Lock carries a PHASE1LOCK: the leader's chosen item for this phase plus
// the ACCEPTABLE evidence proving N-f peers would accept it.
type Lock struct {
	Channel  string
	Sender   string
	Bno      uint64
	Phase    uint64
	Block    [][]byte
	Evidence []*Acceptable
	Sig      []byte
}

func (m *Lock) Tag() codec.Tag      { return TagLock }
func (m *Lock) ChannelID() string   { return m.Channel }
func (m *Lock) SenderAddr() string  { return m.Sender }
func (m *Lock) Signature() []byte   { return m.Sig }
func (m *Lock) SetSignature(s []byte) { m.Sig = s }
func (m *Lock) fieldsWithoutSig() []any {
	ev := make([]any, len(m.Evidence))
	for i, e := range m.Evidence {
		ev[i] = e.fieldsWithoutSig()
		ev[i] = append(ev[i].([]any), e.Sig)
	}
	return []any{m.Channel, uint8(WireLock), m.Sender, m.Bno, m.Phase, codec.SortItems(m.Block), ev}
}
func (m *Lock) SignPayload() ([]byte, error) { return signPayload(m, m.fieldsWithoutSig()) }

// Ack carries a PHASE2ACK: a follower's acknowledgement of a lock.
type Ack struct {
	Channel string
	Sender  string
	Bno     uint64
	Phase   uint64
	Block   [][]byte
	Sig     []byte
}

func (m *Ack) Tag() codec.Tag      { return TagAck }
func (m *Ack) ChannelID() string   { return m.Channel }
func (m *Ack) SenderAddr() string  { return m.Sender }
func (m *Ack) Signature() []byte   { return m.Sig }
func (m *Ack) SetSignature(s []byte) { m.Sig = s }
func (m *Ack) fieldsWithoutSig() []any {
	return []any{m.Channel, uint8(WireAck), m.Sender, m.Bno, m.Phase, codec.SortItems(m.Block)}
}
func (m *Ack) SignPayload() ([]byte, error) { return signPayload(m, m.fieldsWithoutSig()) }

// Decision is timeless: no phase, no round. It is broadcast to all peers
// and replayable by any holder to bring a lagging peer up to date.
type Decision struct {
	Channel string
	Sender  string
	Bno     uint64
	Block   [][]byte
	Sig     []byte
}

func (m *Decision) Tag() codec.Tag      { return TagDecision }
func (m *Decision) ChannelID() string   { return m.Channel }
func (m *Decision) SenderAddr() string  { return m.Sender }
func (m *Decision) Signature() []byte   { return m.Sig }
func (m *Decision) SetSignature(s []byte) { m.Sig = s }
func (m *Decision) fieldsWithoutSig() []any {
	return []any{m.Channel, uint8(WireDecision), m.Sender, m.Bno, codec.SortItems(m.Block)}
}
func (m *Decision) SignPayload() ([]byte, error) { return signPayload(m, m.fieldsWithoutSig()) }

// Put is a client request to queue an item for inclusion; it carries no
// signature (spec.md §3: "PUT(channel, sender, item) — client request,
// unsigned").
type Put struct {
	Channel string
	Sender  string
	Item    []byte
}

func (m *Put) Tag() codec.Tag     { return TagPut }
func (m *Put) ChannelID() string  { return m.Channel }
func (m *Put) SenderAddr() string { return m.Sender }

// Ask is a client read request, also unsigned.
type Ask struct {
	Channel string
	Sender  string
	Bno     uint64
}

func (m *Ask) Tag() codec.Tag     { return TagAsk }
func (m *Ask) ChannelID() string  { return m.Channel }
func (m *Ask) SenderAddr() string { return m.Sender }

// Encode packs any Wire variant into its canonical wire form.
func Encode(w Wire) ([]byte, error) {
	switch m := w.(type) {
	case *Acceptable:
		return codec.Pack(TagAcceptable, []any{m.Channel, m.Sender, m.Bno, m.Phase, codec.SortBlocks(m.Blocks), m.Sig})
	case *Lock:
		evRaw := make([][]byte, len(m.Evidence))
		for i, e := range m.Evidence {
			raw, err := Encode(e)
			if err != nil {
				return nil, err
			}
			evRaw[i] = raw
		}
		return codec.Pack(TagLock, []any{m.Channel, m.Sender, m.Bno, m.Phase, codec.SortItems(m.Block), evRaw, m.Sig})
	case *Ack:
		return codec.Pack(TagAck, []any{m.Channel, m.Sender, m.Bno, m.Phase, codec.SortItems(m.Block), m.Sig})
	case *Decision:
		return codec.Pack(TagDecision, []any{m.Channel, m.Sender, m.Bno, codec.SortItems(m.Block), m.Sig})
	case *Put:
		return codec.Pack(TagPut, []any{m.Channel, m.Sender, m.Item})
	case *Ask:
		return codec.Pack(TagAsk, []any{m.Channel, m.Sender, m.Bno})
	default:
		return nil, fmt.Errorf("message: unknown wire type %T", w)
	}
}

// Decode inspects the leading tag and unpacks into the matching concrete
// type, rejecting any tag outside the closed set of six per spec.md §6.
func Decode(data []byte) (Wire, error) {
	tag, err := codec.PeekTag(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagAcceptable:
		var f struct {
			_       struct{} `cbor:",toarray"`
			Channel string
			Sender  string
			Bno     uint64
			Phase   uint64
			Blocks  [][][]byte
			Sig     []byte
		}
		if err := codec.Unpack(data, TagAcceptable, &f); err != nil {
			return nil, err
		}
		return &Acceptable{Channel: f.Channel, Sender: f.Sender, Bno: f.Bno, Phase: f.Phase, Blocks: f.Blocks, Sig: f.Sig}, nil
	case TagLock:
		var f struct {
			_        struct{} `cbor:",toarray"`
			Channel  string
			Sender   string
			Bno      uint64
			Phase    uint64
			Block    [][]byte
			Evidence [][]byte
			Sig      []byte
		}
		if err := codec.Unpack(data, TagLock, &f); err != nil {
			return nil, err
		}
		ev := make([]*Acceptable, len(f.Evidence))
		for i, raw := range f.Evidence {
			w, err := Decode(raw)
			if err != nil {
				return nil, err
			}
			acc, ok := w.(*Acceptable)
			if !ok {
				return nil, fmt.Errorf("%w: lock evidence element is not ACCEPTABLE", codec.ErrMalformed)
			}
			ev[i] = acc
		}
		return &Lock{Channel: f.Channel, Sender: f.Sender, Bno: f.Bno, Phase: f.Phase, Block: f.Block, Evidence: ev, Sig: f.Sig}, nil
	case TagAck:
		var f struct {
			_       struct{} `cbor:",toarray"`
			Channel string
			Sender  string
			Bno     uint64
			Phase   uint64
			Block   [][]byte
			Sig     []byte
		}
		if err := codec.Unpack(data, TagAck, &f); err != nil {
			return nil, err
		}
		return &Ack{Channel: f.Channel, Sender: f.Sender, Bno: f.Bno, Phase: f.Phase, Block: f.Block, Sig: f.Sig}, nil
	case TagDecision:
		var f struct {
			_       struct{} `cbor:",toarray"`
			Channel string
			Sender  string
			Bno     uint64
			Block   [][]byte
			Sig     []byte
		}
		if err := codec.Unpack(data, TagDecision, &f); err != nil {
			return nil, err
		}
		return &Decision{Channel: f.Channel, Sender: f.Sender, Bno: f.Bno, Block: f.Block, Sig: f.Sig}, nil
	case TagPut:
		var f struct {
			_       struct{} `cbor:",toarray"`
			Channel string
			Sender  string
			Item    []byte
		}
		if err := codec.Unpack(data, TagPut, &f); err != nil {
			return nil, err
		}
		return &Put{Channel: f.Channel, Sender: f.Sender, Item: f.Item}, nil
	case TagAsk:
		var f struct {
			_       struct{} `cbor:",toarray"`
			Channel string
			Sender  string
			Bno     uint64
		}
		if err := codec.Unpack(data, TagAsk, &f); err != nil {
			return nil, err
		}
		return &Ask{Channel: f.Channel, Sender: f.Sender, Bno: f.Bno}, nil
	default:
		return nil, fmt.Errorf("%w: unknown wire tag %d", codec.ErrMalformed, tag)
	}
}
