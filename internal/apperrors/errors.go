// Package apperrors defines the closed set of error kinds surfaced by the
// service. Callers inspect failures with errors.Is against these sentinels,
// never by matching message strings.
package apperrors

import (
	"errors"
	"net/http"
)

var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("invalid input")
	// ErrUnauthorized indicates a missing, invalid, or revoked credential.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates an authenticated caller lacking entitlement.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a write would violate a uniqueness constraint.
	ErrConflict = errors.New("conflict")

	// ErrTokenInvalid indicates a token with a bad signature or structure.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates a well-signed token past its expiry. Kept
	// distinct from ErrTokenInvalid so clients can refresh instead of
	// re-authenticating.
	ErrTokenExpired = errors.New("token expired")

	// ErrUploadFailed indicates the object store rejected an upload.
	ErrUploadFailed = errors.New("upload failed")
	// ErrAssetDeletionFailed indicates a blob delete failed while the
	// owning record still exists.
	ErrAssetDeletionFailed = errors.New("asset deletion failed")
	// ErrPersistence indicates a database write failed.
	ErrPersistence = errors.New("persistence failure")
)

// Kind returns the stable identifier reported in failure envelopes.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "ValidationError"
	case errors.Is(err, ErrTokenExpired):
		return "TokenExpired"
	case errors.Is(err, ErrTokenInvalid):
		return "TokenInvalid"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrForbidden):
		return "Forbidden"
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrConflict):
		return "Conflict"
	case errors.Is(err, ErrUploadFailed):
		return "UploadFailed"
	case errors.Is(err, ErrAssetDeletionFailed):
		return "AssetDeletionFailed"
	case errors.Is(err, ErrPersistence):
		return "PersistenceError"
	default:
		return "Internal"
	}
}

// HTTPStatus maps an error to the response status for the failure envelope.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrTokenExpired), errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
