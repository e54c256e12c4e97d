package jobs

import "errors"

var (
	ErrKeywordNotFound     = errors.New("keyword not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)
