package game

import (
	"errors"
	"fmt"
)

// Error classes. Specific errors below wrap one of these so callers can
// branch with errors.Is on either the class or the concrete failure.
var (
	ErrValidation  = errors.New("validation error")
	ErrPhase       = errors.New("invalid phase")
	ErrPersistence = errors.New("persistence error")
)

var (
	ErrInvalidAmount       = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrUserNotFound        = fmt.Errorf("%w: user not found", ErrValidation)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrValidation)
	ErrInvalidMultiplier   = fmt.Errorf("%w: multiplier must exceed 1", ErrValidation)
	ErrNoActiveBet         = fmt.Errorf("%w: no active bet", ErrValidation)
	ErrAlreadyCashedOut    = fmt.Errorf("%w: already cashed out", ErrValidation)
	ErrDuplicateBet        = fmt.Errorf("%w: bet already placed this round", ErrValidation)
	ErrMultiplierAhead     = fmt.Errorf("%w: multiplier is ahead of the clock", ErrValidation)
)
