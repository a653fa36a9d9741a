package domain

import (
	"errors"
	"fmt"
)

// GeoErrorCode classifies position acquisition failures. These are the only
// failures surfaced to users; geocoding and serviceability errors degrade
// internally instead.
type GeoErrorCode string

const (
	GeoPermissionDenied    GeoErrorCode = "permission_denied"
	GeoPositionUnavailable GeoErrorCode = "position_unavailable"
	GeoTimeout             GeoErrorCode = "timeout"
	GeoUnsupported         GeoErrorCode = "unsupported"
)

// GeoError wraps a position provider failure with its classification.
type GeoError struct {
	Code    GeoErrorCode
	Message string
	Err     error
}

func (e *GeoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GeoError) Unwrap() error { return e.Err }

// NewGeoError builds a classified position error. err may be nil.
func NewGeoError(code GeoErrorCode, message string, err error) *GeoError {
	return &GeoError{Code: code, Message: message, Err: err}
}

// GeoCode extracts the classification from an error chain. The second return
// is false when the error is not a GeoError.
func GeoCode(err error) (GeoErrorCode, bool) {
	var ge *GeoError
	if errors.As(err, &ge) {
		return ge.Code, true
	}
	return "", false
}
