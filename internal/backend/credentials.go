package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"globalchat/internal/pkg/errs"
)

// Credential limits enforced by the auth backends.
const (
	DefaultMinPasswordLength = 6
	MaxPasswordLength        = 72
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizeEmail lowercases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateCredentials checks a sign-up request and returns an ErrAuthFailed error
// carrying a message in the hosted service's wording.
func ValidateCredentials(email, password string, minPasswordLength int) error {
	if err := validate.Var(NormalizeEmail(email), "required,email,max=254"); err != nil {
		if tagOf(err) == "required" {
			return errs.Wrap(errs.ErrAuthFailed, errors.New("Anonymous sign-ins are disabled"))
		}
		return errs.Wrap(errs.ErrAuthFailed, errors.New("Unable to validate email address: invalid format"))
	}

	if minPasswordLength < 1 {
		minPasswordLength = 1
	}
	rule := fmt.Sprintf("required,min=%d,max=%d", minPasswordLength, MaxPasswordLength)
	if err := validate.Var(password, rule); err != nil {
		if tagOf(err) == "max" {
			return errs.Wrap(errs.ErrAuthFailed, fmt.Errorf("Password cannot be longer than %d characters", MaxPasswordLength))
		}
		return errs.Wrap(errs.ErrAuthFailed, fmt.Errorf("Password should be at least %d characters.", minPasswordLength))
	}

	return nil
}

func tagOf(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return fieldErrs[0].Tag()
	}
	return ""
}

// Messages returned by the auth backends for rejected requests.
var (
	ErrUserAlreadyRegistered = errors.New("User already registered")
	ErrInvalidLogin          = errors.New("Invalid login credentials")
)
