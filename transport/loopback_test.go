package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gdanezis/dlsconsensus-go/message"
)

type recorder struct {
	received []message.Wire
}

func (r *recorder) PutMessages(msgs []message.Wire) error {
	r.received = append(r.received, msgs...)
	return nil
}

func TestSendDeliversToRegisteredHandler(t *testing.T) {
	lb := NewLoopback()
	r := &recorder{}
	lb.Register("A", r)

	w := &message.Put{Channel: "Shard0", Sender: "B", Item: []byte("x")}
	require.NoError(t, lb.Send(context.Background(), "A", w))
	require.Len(t, r.received, 1)
}

func TestSendToUnregisteredAddrErrors(t *testing.T) {
	lb := NewLoopback()
	err := lb.Send(context.Background(), "ghost", &message.Put{})
	require.Error(t, err)
}

func TestDropEveryDropsOnCadence(t *testing.T) {
	lb := NewLoopback()
	r := &recorder{}
	lb.Register("A", r)
	lb.SetDropEvery(3)

	for i := 0; i < 6; i++ {
		require.NoError(t, lb.Send(context.Background(), "A", &message.Put{}))
	}
	// sends 3 and 6 are dropped, 4 delivered
	require.Len(t, r.received, 4)
}

func TestDuplicateEveryDuplicatesOnCadence(t *testing.T) {
	lb := NewLoopback()
	r := &recorder{}
	lb.Register("A", r)
	lb.SetDuplicateEvery(2)

	for i := 0; i < 4; i++ {
		require.NoError(t, lb.Send(context.Background(), "A", &message.Put{}))
	}
	// sends 2 and 4 deliver twice: 1 + 2 + 1 + 2 = 6
	require.Len(t, r.received, 6)
}

func TestDropTakesPrecedenceOverDuplicateOnSameSend(t *testing.T) {
	lb := NewLoopback()
	r := &recorder{}
	lb.Register("A", r)
	lb.SetDropEvery(2)
	lb.SetDuplicateEvery(2)

	require.NoError(t, lb.Send(context.Background(), "A", &message.Put{}))
	require.NoError(t, lb.Send(context.Background(), "A", &message.Put{}))
	require.Len(t, r.received, 1)
}
