package message

// Kind enumerates the four internal message variants the DLS state
// machine consumes and emits. It is a pure tag, distinct from the CBOR
// wire tags in codec.Tag.
type Kind uint8

const (
	KindPhase0 Kind = iota
	KindPhase1Lock
	KindPhase2Ack
	KindRelease3
)

func (k Kind) String() string {
	switch k {
	case KindPhase0:
		return "PHASE0"
	case KindPhase1Lock:
		return "PHASE1LOCK"
	case KindPhase2Ack:
		return "PHASE2ACK"
	case KindRelease3:
		return "RELEASE3"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether k is one of the four defined internal kinds —
// used by Machine.PutMessages to reject the TypeError case spec.md §4.3
// requires on API misuse.
func (k Kind) Valid() bool {
	switch k {
	case KindPhase0, KindPhase1Lock, KindPhase2Ack, KindRelease3:
		return true
	default:
		return false
	}
}

// WireTag identifies one of the six wire message variants carried over
// the transport. Distinct from codec.Tag's numeric space only by
// convention; kept as its own type so callers can't accidentally compare
// a wire tag to an internal Kind.
type WireTag uint8

const (
	WireAcceptable WireTag = iota
	WireLock
	WireAck
	WireDecision
	WirePut
	WireAsk
)

func (t WireTag) String() string {
	switch t {
	case WireAcceptable:
		return "ACCEPTABLE"
	case WireLock:
		return "LOCK"
	case WireAck:
		return "ACK"
	case WireDecision:
		return "DECISION"
	case WirePut:
		return "PUT"
	case WireAsk:
		return "ASK"
	default:
		return "UNKNOWN"
	}
}
