package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPhase0KeyIgnoresRaw(t *testing.T) {
	require := require.New(t)

	a := &Phase0{Acceptable: [][]byte{[]byte("x")}, Phase: 1, Sender: 0, Raw: &Acceptable{Sig: []byte("a")}}
	b := &Phase0{Acceptable: [][]byte{[]byte("x")}, Phase: 1, Sender: 0, Raw: &Acceptable{Sig: []byte("b")}}

	require.Equal(a.Key(), b.Key())
}

func TestPhase0KeyOrderIndependent(t *testing.T) {
	require := require.New(t)

	a := &Phase0{Acceptable: [][]byte{[]byte("x"), []byte("y")}, Phase: 1, Sender: 0}
	b := &Phase0{Acceptable: [][]byte{[]byte("y"), []byte("x")}, Phase: 1, Sender: 0}

	require.Equal(a.Key(), b.Key())
}

func TestPhase0KeyDistinguishesContent(t *testing.T) {
	require := require.New(t)

	a := &Phase0{Acceptable: [][]byte{[]byte("x")}, Phase: 1, Sender: 0}
	b := &Phase0{Acceptable: [][]byte{[]byte("z")}, Phase: 1, Sender: 0}

	require.NotEqual(a.Key(), b.Key())
}

func TestBufferDedupesByKey(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	buf.Add(&Phase0{Acceptable: [][]byte{[]byte("x")}, Phase: 1, Sender: 0, Raw: &Acceptable{Sig: []byte("a")}})
	buf.Add(&Phase0{Acceptable: [][]byte{[]byte("x")}, Phase: 1, Sender: 0, Raw: &Acceptable{Sig: []byte("b")}})

	require.Equal(1, buf.Len())
}

func TestBufferDrainClears(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	buf.Add(&Phase0{Acceptable: [][]byte{[]byte("x")}, Phase: 1, Sender: 0})
	require.Equal(1, buf.Len())

	drained := buf.Drain()
	require.Len(drained, 1)
	require.Equal(0, buf.Len())
}

func TestBufferRemoveWhere(t *testing.T) {
	require := require.New(t)

	buf := NewBuffer()
	buf.Add(&Phase0{Acceptable: [][]byte{[]byte("x")}, Phase: 1, Sender: 0})
	buf.Add(&Phase0{Acceptable: [][]byte{[]byte("y")}, Phase: 3, Sender: 1})
	buf.RemoveWhere(func(m Internal) bool { return m.PhaseNum() < 2 })

	require.Equal(1, buf.Len())
}
