package upload

import (
	"errors"
	"net/http"
)

var (
	ErrSizeLimitExceeded = errors.New("upload exceeds size limit")
	ErrEmptyUpload       = errors.New("empty upload")
	ErrMalformedRequest  = errors.New("malformed upload request")
	ErrIOFailure         = errors.New("storage i/o failure")
	ErrStreamAborted     = errors.New("upload stream aborted")
)

// StatusFor maps an upload error to the HTTP status reported to the client.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrSizeLimitExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrEmptyUpload), errors.Is(err, ErrMalformedRequest), errors.Is(err, ErrStreamAborted):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Outcome is the metrics label for err.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "stored"
	case errors.Is(err, ErrSizeLimitExceeded):
		return "size_limit"
	case errors.Is(err, ErrEmptyUpload):
		return "empty"
	case errors.Is(err, ErrMalformedRequest):
		return "malformed"
	case errors.Is(err, ErrStreamAborted):
		return "aborted"
	default:
		return "io_failure"
	}
}
