package randx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowID(t *testing.T) {
	id := RowID()
	assert.True(t, IsValidRowID(id))
	assert.NotEqual(t, id, RowID())
	assert.False(t, IsValidRowID("not-a-uuid"))
}

func TestSubscriptionRefUnique(t *testing.T) {
	assert.NotEqual(t, SubscriptionRef(), SubscriptionRef())
}

func TestAvatarKey(t *testing.T) {
	key := AvatarKey("user-1", "Me.PNG")

	assert.True(t, strings.HasPrefix(key, "avatars/user-1/"))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.True(t, IsAvatarKeyOf(key, "user-1"))
	assert.False(t, IsAvatarKeyOf(key, "user-2"))
}
