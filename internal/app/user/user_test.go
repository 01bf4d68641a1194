package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymous(t *testing.T) {
	var s State = Anonymous{}

	assert.Empty(t, s.ID())
	assert.Empty(t, s.Email())
	assert.False(t, IsAuthenticated(s))
	assert.Equal(t, Anonymous{}, s.Clone())
}

func TestAuthenticatedCloneIsDeep(t *testing.T) {
	live := Authenticated{UserID: "u1", Address: "a@example.com", Details: &Details{Bio: "x"}}

	snapshot, ok := live.Clone().(Authenticated)
	require.True(t, ok)
	snapshot.Details.Bio = "changed"

	assert.Equal(t, "x", live.Details.Bio)
	assert.True(t, IsAuthenticated(live))
	assert.True(t, live.Hydrated())
}

func TestCloneWithoutDetails(t *testing.T) {
	s := Clone(Authenticated{UserID: "u1", Address: "a@example.com"})

	a := s.(Authenticated)
	assert.Equal(t, "u1", a.ID())
	assert.Equal(t, "a@example.com", a.Email())
	assert.False(t, a.Hydrated())
	assert.Equal(t, Anonymous{}, Clone(nil))
}
