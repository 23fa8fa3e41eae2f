package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const tagTest Tag = 1

type testFields struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Value int
	Data  []byte
}

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		fields testFields
	}{
		{
			name:   "simple fields",
			fields: testFields{Name: "hello", Value: 42, Data: []byte("world")},
		},
		{
			name:   "empty data",
			fields: testFields{Name: "", Value: 0, Data: nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			packed, err := Pack(tagTest, []any{tt.fields})
			require.NoError(err)

			var got []testFields
			require.NoError(Unpack(packed, tagTest, &got))
			require.Len(got, 1)
			require.Equal(tt.fields, got[0])
		})
	}
}

func TestPackDeterministic(t *testing.T) {
	require := require.New(t)

	fields := testFields{Name: "a", Value: 1, Data: []byte{1, 2, 3}}
	a, err := Pack(tagTest, []any{fields})
	require.NoError(err)
	b, err := Pack(tagTest, []any{fields})
	require.NoError(err)
	require.Equal(a, b)
}

func TestUnpackWrongTag(t *testing.T) {
	require := require.New(t)

	packed, err := Pack(tagTest, []any{testFields{Name: "x"}})
	require.NoError(err)

	var got testFields
	err = Unpack(packed, Tag(2), &got)
	require.ErrorIs(err, ErrMalformed)
}

func TestUnpackTruncated(t *testing.T) {
	require := require.New(t)

	packed, err := Pack(tagTest, []any{testFields{Name: "x"}})
	require.NoError(err)

	err = Unpack(packed[:len(packed)/2], tagTest, &testFields{})
	require.ErrorIs(err, ErrMalformed)
}

func TestPeekTag(t *testing.T) {
	require := require.New(t)

	packed, err := Pack(tagTest, []any{testFields{Name: "x"}})
	require.NoError(err)

	tag, err := PeekTag(packed)
	require.NoError(err)
	require.Equal(tagTest, tag)
}

func TestSortItemsDeterministicOrder(t *testing.T) {
	require := require.New(t)

	in := [][]byte{[]byte("banana"), []byte("apple"), []byte("cherry")}
	got := SortItems(in)
	require.Equal([][]byte{[]byte("apple"), []byte("banana"), []byte("cherry")}, got)
	// input not mutated
	require.Equal([]byte("banana"), in[0])
}

func TestSortBlocksOrdersItemsThenBlocks(t *testing.T) {
	require := require.New(t)

	blocks := [][][]byte{
		{[]byte("z")},
		{[]byte("a"), []byte("b")},
		{[]byte("a")},
	}
	got := SortBlocks(blocks)
	require.Equal([][][]byte{
		{[]byte("a")},
		{[]byte("a"), []byte("b")},
		{[]byte("z")},
	}, got)
}

func TestCompareItems(t *testing.T) {
	require := require.New(t)

	require.True(CompareItems([]byte("a"), []byte("b")) < 0)
	require.True(CompareItems([]byte("b"), []byte("a")) > 0)
	require.Equal(0, CompareItems([]byte("a"), []byte("a")))
	require.True(CompareItems([]byte("ab"), []byte("a")) > 0)
}
