package uuid

import (
	"errors"
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := NewUUIDGenerator()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
	require.Less(t, id1, id2, "v7 ids sort by creation time")
}

func TestGeneratorSourceError(t *testing.T) {
	t.Parallel()

	entropy := errors.New("entropy exhausted")
	gen := &Generator{source: func() (goUUID.UUID, error) { return goUUID.Nil, entropy }}
	_, err := gen.NewID()
	require.ErrorIs(t, err, entropy)
}
