package signer

import (
	"testing"

	"github.com/gdanezis/dlsconsensus-go/message"
	"github.com/stretchr/testify/require"
)

func TestSignThenVerify(t *testing.T) {
	require := require.New(t)

	key := Key("peer-0-key")
	m := &message.Ack{Channel: "c", Sender: "addr-0", Bno: 1, Phase: 2, Block: [][]byte{[]byte("x")}}

	require.NoError(Sign(key, m))
	require.NotEmpty(m.Signature())
	require.True(Verify(key, m))
}

func TestVerifyFailsWrongKey(t *testing.T) {
	require := require.New(t)

	m := &message.Ack{Channel: "c", Sender: "addr-0", Bno: 1, Phase: 2, Block: [][]byte{[]byte("x")}}
	require.NoError(Sign(Key("key-a"), m))
	require.False(Verify(Key("key-b"), m))
}

func TestVerifyFailsTamperedPayload(t *testing.T) {
	require := require.New(t)

	key := Key("shared")
	m := &message.Ack{Channel: "c", Sender: "addr-0", Bno: 1, Phase: 2, Block: [][]byte{[]byte("x")}}
	require.NoError(Sign(key, m))

	m.Block = [][]byte{[]byte("y")}
	require.False(Verify(key, m))
}

func TestVerifyFailsUnsigned(t *testing.T) {
	require := require.New(t)

	m := &message.Ack{Channel: "c", Sender: "addr-0", Bno: 1, Phase: 2, Block: [][]byte{[]byte("x")}}
	require.False(Verify(Key("key"), m))
}

func TestSignDeterministic(t *testing.T) {
	require := require.New(t)

	key := Key("shared")
	m1 := &message.Ack{Channel: "c", Sender: "addr-0", Bno: 1, Phase: 2, Block: [][]byte{[]byte("x")}}
	m2 := &message.Ack{Channel: "c", Sender: "addr-0", Bno: 1, Phase: 2, Block: [][]byte{[]byte("x")}}

	require.NoError(Sign(key, m1))
	require.NoError(Sign(key, m2))
	require.Equal(m1.Signature(), m2.Signature())
}
