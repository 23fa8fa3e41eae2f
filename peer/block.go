package peer

import "github.com/gdanezis/dlsconsensus-go/codec"

// tagBlock tags the opaque encoding a block ([][]byte of items) is
// reduced to before being handed to dls.Machine as a single proposal
// value. The DLS core is generic over an opaque comparable T; at the
// peer layer T is always "one block", so encodeBlock/decodeBlock is the
// adapter between the two (spec.md §3: "a block is the unit the DLS
// core agrees on").
const tagBlock codec.Tag = 200

func encodeBlock(block [][]byte) ([]byte, error) {
	return codec.PackValue(tagBlock, codec.SortItems(block))
}

func decodeBlock(data []byte) ([][]byte, error) {
	var block [][]byte
	if err := codec.UnpackValue(data, tagBlock, &block); err != nil {
		return nil, err
	}
	return block, nil
}
