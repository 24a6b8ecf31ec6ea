package core

import "errors"

var (
	ErrOutOfRange              = errors.New("value out of range [0, 1]")
	ErrNegativeAmount          = errors.New("resource amount must be non-negative")
	ErrNegativeDuration        = errors.New("recovery activity duration must be non-negative")
	ErrNegativeTimeStep        = errors.New("time step must be non-negative")
	ErrUnknownVariant          = errors.New("unknown variant")
	ErrUnknownRecoveryResource = errors.New("no recovery activity demands resource")
	ErrUnknownActivity         = errors.New("unknown recovery activity")
	ErrUnknownResource         = errors.New("unknown resource")
	ErrInvalidParameters       = errors.New("invalid parameters")
)
