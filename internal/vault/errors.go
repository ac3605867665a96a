package vault

import (
	"errors"
	"fmt"
)

// Every fallible precondition maps to one of these sentinels; callers match
// with errors.Is. Wrapped forms carry the actor and amounts for diagnosis.
var (
	ErrInvalidAmount            = errors.New("invalid amount")
	ErrInvalidAddress           = errors.New("invalid address")
	ErrCapacityExceeded         = errors.New("capacity exceeded")
	ErrInsufficientBalance      = errors.New("insufficient balance")
	ErrThresholdExceeded        = errors.New("withdrawal threshold exceeded")
	ErrInsufficientOutput       = errors.New("insufficient output amount")
	ErrLiquidityInsufficient    = errors.New("insufficient liquidity")
	ErrPairNotFound             = errors.New("pair not found")
	ErrReferenceAssetNotAllowed = errors.New("reference asset not allowed")
	ErrUnsupportedAssetPath     = errors.New("unsupported asset path")
	ErrInitializationFailed     = errors.New("initialization failed")
	ErrInvalidCapacity          = errors.New("invalid capacity")
	ErrNotAuthorized            = errors.New("not authorized")
	ErrReentrantCall            = errors.New("reentrant call")
)

func depositRejected(err error) error {
	return fmt.Errorf("deposit rejected: %w", err)
}
