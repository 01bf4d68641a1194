/*
Package profile reads and writes rows of the user_profiles table.

The store is a thin pass-through: it maps rows to Profile values and backend failures
to errs codes. It also issues presigned avatar URLs when object storage is configured.
*/
package profile

import (
	"fmt"

	"globalchat/internal/app/user"
	"globalchat/internal/backend"
)

// Table is the profile table name.
const Table = "user_profiles"

// Column names of the profile table.
const (
	ColID          = "id"
	ColEmail       = "email"
	ColDisplayName = "display_name"
	ColBio         = "bio"
	ColCareer      = "career"
	ColAvatarKey   = "avatar_key"
)

// Profile is one row of the profile table.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`

	user.Details
}

// Row converts p for insertion. Empty optional fields are left out.
func (p Profile) Row() backend.Row {
	row := backend.Row{
		ColID:    p.ID,
		ColEmail: p.Email,
	}
	for col, v := range map[string]string{
		ColDisplayName: p.DisplayName,
		ColBio:         p.Bio,
		ColCareer:      p.Career,
		ColAvatarKey:   p.AvatarKey,
	} {
		if v != "" {
			row[col] = v
		}
	}
	return row
}

func stringColumn(row backend.Row, col string) (string, error) {
	switch v := row[col].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("column %s has unexpected type %T", col, v)
	}
}

// FromRow decodes a profile row. NULL columns decode to "".
func FromRow(row backend.Row) (Profile, error) {
	var p Profile
	targets := []struct {
		col string
		dst *string
	}{
		{ColID, &p.ID},
		{ColEmail, &p.Email},
		{ColDisplayName, &p.DisplayName},
		{ColBio, &p.Bio},
		{ColCareer, &p.Career},
		{ColAvatarKey, &p.AvatarKey},
	}

	for _, t := range targets {
		v, err := stringColumn(row, t.col)
		if err != nil {
			return Profile{}, err
		}
		*t.dst = v
	}

	if p.ID == "" {
		return Profile{}, fmt.Errorf("profile row without %s", ColID)
	}
	return p, nil
}

// Update is a partial profile change. Nil fields are left untouched.
type Update struct {
	DisplayName *string `json:"displayName,omitempty"`
	Bio         *string `json:"bio,omitempty"`
	Career      *string `json:"career,omitempty"`
	AvatarKey   *string `json:"avatarKey,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.DisplayName == nil && u.Bio == nil && u.Career == nil && u.AvatarKey == nil
}

// Row returns the columns to patch.
func (u Update) Row() backend.Row {
	row := backend.Row{}
	if u.DisplayName != nil {
		row[ColDisplayName] = *u.DisplayName
	}
	if u.Bio != nil {
		row[ColBio] = *u.Bio
	}
	if u.Career != nil {
		row[ColCareer] = *u.Career
	}
	if u.AvatarKey != nil {
		row[ColAvatarKey] = *u.AvatarKey
	}
	return row
}

// ApplyTo merges the set fields into d.
func (u Update) ApplyTo(d *user.Details) {
	if u.DisplayName != nil {
		d.DisplayName = *u.DisplayName
	}
	if u.Bio != nil {
		d.Bio = *u.Bio
	}
	if u.Career != nil {
		d.Career = *u.Career
	}
	if u.AvatarKey != nil {
		d.AvatarKey = *u.AvatarKey
	}
}
