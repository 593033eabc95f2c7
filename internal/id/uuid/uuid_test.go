package uuid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewID()
	require.NoError(t, err)
	second, err := gen.NewID()
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.Equal(t, 7, int(first.Version()))
	require.LessOrEqual(t, first.String(), second.String())
}
