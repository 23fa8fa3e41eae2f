package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllInstruments(t *testing.T) {
	require := require.New(t)

	reg := prometheus.NewRegistry()
	s, err := New(reg)
	require.NoError(err)
	require.NotNil(s)

	s.IncRoundsAdvanced()
	s.IncDecisionsReached()
	s.IncDropped(ReasonBadSignature)
	s.SetLocksHeld(1)
	s.ObserveCheckpointSeconds(0.01)

	mfs, err := reg.Gather()
	require.NoError(err)
	require.NotEmpty(mfs)
}

func TestNilSetIsSafe(t *testing.T) {
	var s *Set
	s.IncRoundsAdvanced()
	s.IncDecisionsReached()
	s.IncDropped(ReasonMalformed)
	s.SetLocksHeld(0)
	s.ObserveCheckpointSeconds(0)
}

func TestDoubleRegisterFails(t *testing.T) {
	require := require.New(t)

	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(err)

	_, err = New(reg)
	require.Error(err)
}
