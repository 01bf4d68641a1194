/*
Package user contains the representation of the signed-in user held by the client layer.

A State is either Anonymous or Authenticated. An Authenticated state starts with only the
account id and email; Details is filled in once the profile row has been fetched.
*/
package user

// State is the cached user record. It is implemented only by Anonymous and Authenticated.
type State interface {
	// ID returns the account id, or "" when anonymous.
	ID() string

	// Email returns the account email, or "" when anonymous.
	Email() string

	// Clone returns an independent deep copy.
	Clone() State

	isState()
}

// Anonymous is the state with no signed-in user.
type Anonymous struct{}

func (Anonymous) ID() string    { return "" }
func (Anonymous) Email() string { return "" }
func (Anonymous) Clone() State  { return Anonymous{} }
func (Anonymous) isState()      {}

// Details holds the profile fields merged into an authenticated user.
type Details struct {
	DisplayName string `json:"displayName,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Career      string `json:"career,omitempty"`
	AvatarKey   string `json:"avatarKey,omitempty"`
}

// Authenticated is a signed-in user.
type Authenticated struct {
	// UserID is the account id assigned by the auth backend.
	UserID string `json:"id"`

	// Address is the sign-in email.
	Address string `json:"email"`

	// Details is nil until the profile has been loaded.
	Details *Details `json:"details,omitempty"`
}

func (a Authenticated) ID() string    { return a.UserID }
func (a Authenticated) Email() string { return a.Address }
func (Authenticated) isState()        {}

func (a Authenticated) Clone() State {
	out := a
	if a.Details != nil {
		d := *a.Details
		out.Details = &d
	}
	return out
}

// Hydrated reports whether the profile details have been merged.
func (a Authenticated) Hydrated() bool {
	return a.Details != nil
}

// IsAuthenticated reports whether s is a signed-in user.
func IsAuthenticated(s State) bool {
	_, ok := s.(Authenticated)
	return ok
}

// Clone copies s, treating nil as Anonymous.
func Clone(s State) State {
	if s == nil {
		return Anonymous{}
	}
	return s.Clone()
}
