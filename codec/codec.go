// Package codec provides deterministic, self-describing binary
// serialization for the closed set of message variants exchanged by the
// DLS consensus core. Equal values always produce byte-identical output,
// which the protocol relies on for signature determinism (two peers that
// build the "same" message must sign the same bytes).
package codec

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformed is returned by Unpack on truncated input, an unknown tag,
// or an arity mismatch between the decoded envelope and what the caller
// expects.
var ErrMalformed = errors.New("codec: malformed input")

// Tag identifies a registered message variant. The mapping from Tag to Go
// type lives with the message package, not here: the codec only knows how
// to move a tag and a positional field list to and from bytes.
type Tag uint64

var canonical cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("codec: building canonical encoder: %v", err))
	}
	canonical = mode
}

// envelope is the wire shape of every tagged value: the tag, followed by
// the variant's fields in declaration order. CBOR arrays (not maps)
// preserve that positional ordering, and CanonicalEncOptions guarantees
// two equal Go values marshal to identical bytes.
type envelope struct {
	_    struct{} `cbor:",toarray"`
	Tag  uint64
	Body cbor.RawMessage
}

// Pack encodes tag and fields (the variant's positional field list, which
// Pack marshals as one CBOR array) into the canonical wire form.
func Pack(tag Tag, fields []any) ([]byte, error) {
	body, err := canonical.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("codec: packing fields for tag %d: %w", tag, err)
	}
	env := envelope{Tag: uint64(tag), Body: body}
	out, err := canonical.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("codec: packing envelope for tag %d: %w", tag, err)
	}
	return out, nil
}

// PeekTag reads only the leading tag from data without decoding the body,
// so a receiver can dispatch to the right variant decoder.
func PeekTag(data []byte) (Tag, error) {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Tag(env.Tag), nil
}

// Unpack decodes data as an envelope for the expected tag and unmarshals
// its body into dst (typically a pointer to a slice/array matching the
// variant's positional field list). It fails with ErrMalformed on
// truncated data, a tag mismatch, or a body that cannot be unmarshaled
// into dst.
func Unpack(data []byte, want Tag, dst any) error {
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if Tag(env.Tag) != want {
		return fmt.Errorf("%w: tag %d, want %d", ErrMalformed, env.Tag, want)
	}
	if err := cbor.Unmarshal(env.Body, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// PackValue encodes tag and v (an arbitrary struct, not a positional field
// list) into the same envelope shape as Pack. It's used where the payload
// is this process's own data, not a wire variant shared with peers, so
// struct-tag field naming is fine and there's no cross-implementation
// positional-array requirement to honor.
func PackValue(tag Tag, v any) ([]byte, error) {
	body, err := canonical.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: packing value for tag %d: %w", tag, err)
	}
	env := envelope{Tag: uint64(tag), Body: body}
	out, err := canonical.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("codec: packing envelope for tag %d: %w", tag, err)
	}
	return out, nil
}

// UnpackValue is PackValue's inverse.
func UnpackValue(data []byte, want Tag, dst any) error {
	return Unpack(data, want, dst)
}

// Pack2 / Pack3 / ... helpers would proliferate call sites; instead
// message types build their field slice as []any{...} and call Pack
// directly. See message.Encode for the pattern.

// SortItems returns a sorted copy of items under the deterministic total
// order spec.md §9 requires for leader-preference tie-breaking:
// lexicographic comparison of the raw bytes. The input is not mutated.
func SortItems(items [][]byte) [][]byte {
	out := make([][]byte, len(items))
	copy(out, items)
	sort.Slice(out, func(i, j int) bool {
		return compareBytes(out[i], out[j]) < 0
	})
	return out
}

// SortBlocks returns a canonically ordered copy of blocks: each block's
// items are sorted, and the blocks themselves are ordered by their sorted
// item lists compared lexicographically element-by-element.
func SortBlocks(blocks [][][]byte) [][][]byte {
	out := make([][][]byte, len(blocks))
	for i, b := range blocks {
		out[i] = SortItems(b)
	}
	sort.Slice(out, func(i, j int) bool {
		return compareBlocks(out[i], out[j]) < 0
	})
	return out
}

func compareBytes(a, b []byte) int {
	switch {
	case len(a) < len(b):
		n := len(a)
		if c := bytesCompareN(a, b, n); c != 0 {
			return c
		}
		return -1
	case len(a) > len(b):
		n := len(b)
		if c := bytesCompareN(a, b, n); c != 0 {
			return c
		}
		return 1
	default:
		return bytesCompareN(a, b, len(a))
	}
}

func bytesCompareN(a, b []byte, n int) int {
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func compareBlocks(a, b [][]byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := compareBytes(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// CompareItems exposes the deterministic total order on items used for
// leader-preference tie-breaking (spec.md §9: "max(evidence) over T").
func CompareItems(a, b []byte) int { return compareBytes(a, b) }
