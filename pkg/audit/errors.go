package audit

import "errors"

var (
	ErrEventValidation = errors.New("event validation failed")
	ErrStorageNil      = errors.New("audit storage is nil")
)
