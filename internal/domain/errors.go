package domain

import "errors"

var (
	ErrInvalidCardID       = errors.New("invalid card id")
	ErrInvalidHolidayRule  = errors.New("invalid holiday rule")
	ErrNonMonotonicHistory = errors.New("non-monotonic card history")
	ErrAlreadyPaused       = errors.New("timer already paused")
	ErrNotPaused           = errors.New("timer not paused")
	ErrInvalidPauseLedger  = errors.New("invalid pause ledger")
)
