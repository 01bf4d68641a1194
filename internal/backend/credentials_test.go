package backend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"globalchat/internal/pkg/errs"
)

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials("a@example.com", "secret1", DefaultMinPasswordLength))
	assert.NoError(t, ValidateCredentials("  A@Example.COM ", "secret1", DefaultMinPasswordLength))
	assert.NoError(t, ValidateCredentials("a@example.com", "pw", 1))

	cases := []struct {
		name     string
		email    string
		password string
		message  string
	}{
		{"missing email", "", "secret1", "Anonymous sign-ins are disabled"},
		{"bad email", "not-an-email", "secret1", "Unable to validate email address: invalid format"},
		{"short password", "a@example.com", "pw", "Password should be at least 6 characters."},
		{"long password", "a@example.com", strings.Repeat("x", 73), "Password cannot be longer than 72 characters"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCredentials(tc.email, tc.password, DefaultMinPasswordLength)

			assert.True(t, errs.Is(err, errs.ErrAuthFailed))
			var customErr *errs.CustomError
			if assert.ErrorAs(t, err, &customErr) {
				assert.Equal(t, tc.message, customErr.Message)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@example.com", NormalizeEmail(" A@Example.com "))
}
