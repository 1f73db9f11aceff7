// Package errors provides structured error handling with machine-readable codes.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Contact errors
	CodeContactNameEmpty      Code = "CONTACT_NAME_EMPTY"
	CodeContactOwnerMissing   Code = "CONTACT_OWNER_MISSING"
	CodeContactNotFound       Code = "CONTACT_NOT_FOUND"
	CodeContactAlreadyExists  Code = "CONTACT_ALREADY_EXISTS"
	CodeContactInvalidEmail   Code = "CONTACT_INVALID_EMAIL"
	CodeContactTagEmpty       Code = "CONTACT_TAG_EMPTY"
	CodeContactInvalidPageArg Code = "CONTACT_INVALID_PAGE_ARG"

	// Note errors
	CodeNoteBodyEmpty      Code = "NOTE_BODY_EMPTY"
	CodeNoteContactMissing Code = "NOTE_CONTACT_MISSING"
	CodeNoteNotFound       Code = "NOTE_NOT_FOUND"

	// Storage errors
	CodeStorageUnavailable Code = "STORAGE_UNAVAILABLE"
	CodeStorageFailure     Code = "STORAGE_FAILURE"

	// Query cache errors
	CodeQueryFetchFailed Code = "QUERY_FETCH_FAILED"
)
