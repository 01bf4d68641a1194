/*
Package errs provides custom error types and application-level error code constants.

This file maps every code to its CustomError template.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid parameters.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Chat and Content Errors
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long."},
	ErrFileSizeTooLarge:      {Code: ErrFileSizeTooLarge, Message: "File is too large."},
	ErrFileTypeInvalid:       {Code: ErrFileTypeInvalid, Message: "File type %s is not allowed."},

	// 3xxx: Authentication Errors
	ErrAuthFailed:   {Code: ErrAuthFailed, Message: "Authentication failed.", Status: http.StatusUnauthorized},
	ErrUnauthorized: {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},

	// 4xxx: Backend Errors
	ErrNotFound:        {Code: ErrNotFound, Message: "%s not found.", Status: http.StatusNotFound},
	ErrStore:           {Code: ErrStore, Message: "Data store request failed.", Status: http.StatusBadGateway},
	ErrRealtime:        {Code: ErrRealtime, Message: "Realtime subscription failed.", Status: http.StatusBadGateway},
	ErrStorageDisabled: {Code: ErrStorageDisabled, Message: "File storage is not configured.", Status: http.StatusServiceUnavailable},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
