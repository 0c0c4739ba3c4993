package services

import "errors"

// Precondition errors: surfaced to the caller immediately, never retried here
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrPlanNotActive        = errors.New("plan is not active")
	ErrSubscriptionInactive = errors.New("subscription is not active")
)

// Plan change errors
var (
	ErrInvalidStrategyForChangeType  = errors.New("strategy not available for this change type")
	ErrDeviceSelectionCountMismatch  = errors.New("selected device count does not match the target limit")
	ErrDeviceSelectionNotOperational = errors.New("selected device is not operational")
)

// ErrLockNotAcquired is transient: the per-user serialization unit could not be
// entered in time. The whole call is safe to retry.
var ErrLockNotAcquired = errors.New("could not acquire user lock")
