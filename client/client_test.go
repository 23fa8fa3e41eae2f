package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	put []byte
	seq [][]byte
}

func (f *fakeDriver) PutSequence(item []byte) { f.put = item }
func (f *fakeDriver) GetSequence() [][]byte   { return f.seq }

func TestPutSequenceForwardsToDriver(t *testing.T) {
	d := &fakeDriver{}
	c := NewInproc(d)
	require.NoError(t, c.PutSequence([]byte("hello")))
	require.Equal(t, []byte("hello"), d.put)
}

func TestGetSequenceReturnsDriverState(t *testing.T) {
	d := &fakeDriver{seq: [][]byte{[]byte("a"), []byte("b")}}
	c := NewInproc(d)
	got, err := c.GetSequence()
	require.NoError(t, err)
	require.Equal(t, d.seq, got)
}
