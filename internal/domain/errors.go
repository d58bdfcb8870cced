package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrZeroSize        = errors.New("position size must be non-zero")
	ErrOrderDead       = errors.New("order reached a non-filled terminal status")
	ErrBudgetViolated  = errors.New("remaining-budget tracker went negative")
	ErrStreamClosed    = errors.New("price stream closed")
	ErrNoProtocols     = errors.New("no followup protocols configured")
	ErrUnknownProtocol = errors.New("unknown protocol")
)
