package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorFormatsTemplate(t *testing.T) {
	err := NewError(ErrNotFound, "profile")

	assert.Equal(t, ErrNotFound, err.Code)
	assert.Equal(t, "profile not found.", err.Message)
	assert.Equal(t, http.StatusNotFound, err.Status)
}

func TestNewErrorWithoutDetailsDropsPlaceholder(t *testing.T) {
	err := NewError(ErrNotFound)
	assert.Equal(t, "not found.", err.Message)
}

func TestNewErrorUnknownCodeFallsBack(t *testing.T) {
	err := NewError(424242)
	assert.Equal(t, ErrUnknown, err.Code)
}

func TestWrapKeepsBackendMessage(t *testing.T) {
	cause := errors.New("User already registered")

	err := Wrap(ErrAuthFailed, cause)

	require.NotNil(t, err)
	assert.Equal(t, "User already registered", err.Message)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, ErrAuthFailed))
	assert.False(t, Is(err, ErrStore))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrStore, nil))
}

func TestIsThroughWrapping(t *testing.T) {
	inner := NewError(ErrNotFound, "row")
	outer := fmt.Errorf("fetch profile: %w", Wrap(ErrStore, inner))

	assert.True(t, Is(outer, ErrStore))
	assert.True(t, Is(outer, ErrNotFound))
	assert.Equal(t, ErrStore, CodeOf(outer))
	assert.Equal(t, ErrUnknown, CodeOf(errors.New("plain")))
}
