package uuid

import (
	"testing"
	"time"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	assert.EqualValues(t, 7, parsed.Version())
}

func TestCreatedAt(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	id, err := New().NewID()
	require.NoError(t, err)

	at, err := CreatedAt(id)
	require.NoError(t, err)
	assert.WithinRange(t, at, before, time.Now().Add(time.Second))

	_, err = CreatedAt(goUUID.NewString())
	require.Error(t, err)
	_, err = CreatedAt("not-a-uuid")
	require.Error(t, err)
}
