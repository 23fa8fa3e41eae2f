package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoOpDoesNotPanic(t *testing.T) {
	l := NoOp()
	l.Debug("x", "k", "v")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	l2 := l.With("peer", 1)
	l2.Info("y")
}

func TestNewZapProducesUsableLogger(t *testing.T) {
	require := require.New(t)

	l, err := NewZap()
	require.NoError(err)
	require.NotNil(l)

	withField := l.With("block", 3)
	require.NotNil(withField)
	withField.Info("advanced")
}
