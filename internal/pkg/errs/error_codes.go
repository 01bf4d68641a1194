/*
Package errs provides custom error types and application-level error code constants.

The codes identify business and system failures both inside the client layer and on
the relay's wire.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that input validation failed.
	ErrInvalidParams = 1001

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Chat and Content Errors
const (
	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length.
	ErrMessageContentTooLong = 2201

	// ErrFileSizeTooLarge indicates that an uploaded file exceeds the size limit.
	ErrFileSizeTooLarge = 2202

	// ErrFileTypeInvalid indicates that an uploaded file has a disallowed type.
	ErrFileTypeInvalid = 2203
)

// 3xxx: Authentication Errors
const (
	// ErrAuthFailed is the AuthError kind: the auth service rejected sign-up or sign-in.
	// The service's own message is kept as the error message.
	ErrAuthFailed = 3101

	// ErrUnauthorized indicates an operation that needs an authenticated user.
	ErrUnauthorized = 3102
)

// 4xxx: Backend Errors
const (
	// ErrNotFound is the NotFoundError kind: a single-row lookup matched nothing.
	ErrNotFound = 4001

	// ErrStore is the StoreError kind: the table store failed or returned an unexpected shape.
	ErrStore = 4002

	// ErrRealtime indicates that a realtime subscription could not be established.
	ErrRealtime = 4003

	// ErrStorageDisabled indicates that object storage was requested but is not configured.
	ErrStorageDisabled = 4004
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000
)
