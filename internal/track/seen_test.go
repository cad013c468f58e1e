// SPDX-License-Identifier: MIT
package track

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreambooster/dreambooster/internal/state"
)

func newTestState(t *testing.T) *state.Store {
	t.Helper()
	st, err := state.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSeenStore(t *testing.T) {
	s := NewSeenStore(newTestState(t))
	ctx := context.Background()

	seen, err := s.Seen(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.MarkSeen(ctx, "abc123"))

	seen, err = s.Seen(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, s.MarkSeen(ctx, "def456"))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCompanyStoreNormalizesNames(t *testing.T) {
	s := NewCompanyStore(newTestState(t))
	ctx := context.Background()

	require.NoError(t, s.RecordApplication(ctx, "  Initech  GmbH "))

	for _, variant := range []string{"initech gmbh", "INITECH GMBH", "Initech GmbH"} {
		has, err := s.HasApplication(ctx, variant)
		require.NoError(t, err)
		assert.True(t, has, "variant %q", variant)
	}

	has, err := s.HasApplication(ctx, "Hooli")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCompanyStoreEmptyName(t *testing.T) {
	s := NewCompanyStore(newTestState(t))
	ctx := context.Background()

	require.NoError(t, s.RecordApplication(ctx, "   "))
	has, err := s.HasApplication(ctx, "")
	require.NoError(t, err)
	assert.False(t, has)
}
