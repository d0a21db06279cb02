package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrValidationDisabled is returned before any report is created when the
// validation engine is switched off; it is a configuration error, not a
// validation outcome.
var ErrValidationDisabled = errors.New("transaction validation is disabled")
