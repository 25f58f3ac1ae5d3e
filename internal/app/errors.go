package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound     = errors.New("not found")
	ErrAuthRequired = errors.New("authorization required")
	ErrFetchFailed  = errors.New("fetch failed")
	ErrInvalidInput = errors.New("invalid input")
)
