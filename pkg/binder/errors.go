package binder

import "errors"

var (
	ErrFailedToParseQuery = errors.New("failed to parse query parameters")
	ErrFailedToParsePath  = errors.New("failed to parse path parameters")
)
