/*
Package randx generates identifiers.

Row and account ids are UUID v4 strings; subscription refs are xids, which are
shorter and sort by creation time in relay logs.
*/
package randx

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/xid"
)

// AvatarPrefix is the object key prefix for profile avatars.
const AvatarPrefix = "avatars"

// RowID generates a UUID v4 string used as a primary key.
func RowID() string {
	return uuid.New().String()
}

// IsValidRowID reports whether id parses as a UUID.
func IsValidRowID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// SubscriptionRef generates the reference attached to a realtime subscription.
func SubscriptionRef() string {
	return xid.New().String()
}

// AvatarKey builds a unique object key for a user's avatar, keeping the file extension.
func AvatarKey(userID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("%s/%s/%s%s", AvatarPrefix, userID, uuid.New().String(), ext)
}

// IsAvatarKeyOf reports whether key was issued by AvatarKey for userID.
func IsAvatarKeyOf(key, userID string) bool {
	return strings.HasPrefix(key, fmt.Sprintf("%s/%s/", AvatarPrefix, userID))
}
