package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gdanezis/dlsconsensus-go/dls"
)

func validSession(t *testing.T) Session {
	t.Helper()
	return Session{
		MyID:        0,
		PrivateKey:  []byte("k0"),
		PublicKeys:  [][]byte{[]byte("k0"), []byte("k1"), []byte("k2"), []byte("k3")},
		Addrs:       []string{"p0:1", "p1:1", "p2:1", "p3:1"},
		Channel:     "chain-0",
		StartRound:  0,
		BackupSinks: []dls.Sink{dls.NewMemSink()},
	}
}

func TestNewAcceptsValidSession(t *testing.T) {
	require := require.New(t)

	s, err := New(validSession(t))
	require.NoError(err)
	require.Equal(4, s.N())
	require.Equal(1, s.F())
}

func TestNewRejectsEmptyAddrs(t *testing.T) {
	s := validSession(t)
	s.Addrs = nil
	_, err := New(s)
	require.ErrorIs(t, err, ErrEmptyAddrs)
}

func TestNewRejectsAddrPubMismatch(t *testing.T) {
	s := validSession(t)
	s.PublicKeys = s.PublicKeys[:2]
	_, err := New(s)
	require.ErrorIs(t, err, ErrAddrPubMismatch)
}

func TestNewRejectsMyIDOutOfRange(t *testing.T) {
	s := validSession(t)
	s.MyID = 4
	_, err := New(s)
	require.ErrorIs(t, err, ErrMyIDOutOfRange)

	s.MyID = -1
	_, err = New(s)
	require.ErrorIs(t, err, ErrMyIDOutOfRange)
}

func TestNewRejectsEmptyChannel(t *testing.T) {
	s := validSession(t)
	s.Channel = ""
	_, err := New(s)
	require.ErrorIs(t, err, ErrEmptyChannel)
}

func TestNewRejectsNoBackupSinks(t *testing.T) {
	s := validSession(t)
	s.BackupSinks = nil
	_, err := New(s)
	require.ErrorIs(t, err, ErrNoBackupSinks)
}

func TestNewRejectsDuplicateAddr(t *testing.T) {
	s := validSession(t)
	s.Addrs[1] = s.Addrs[0]
	_, err := New(s)
	require.ErrorIs(t, err, ErrDuplicateAddr)
}
