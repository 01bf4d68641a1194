package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claim set of a session token issued by the auth backend.
type Payload struct {
	// StandardClaims carries expiry, issue time and issuer.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the account identifier assigned by the auth backend.
	ID string `json:"id"`

	// Email is the account's sign-in address.
	Email string `json:"email"`
}
