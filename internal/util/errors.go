package util

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailRegistered  = errors.New("email already registered")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrPermissionDenied = errors.New("permission denied")

	ErrTestNotFound    = errors.New("test not found")
	ErrLinkageNotFound = errors.New("test linkage not found")

	ErrNotYetOpen          = errors.New("test not yet open for attempts")
	ErrWindowClosed        = errors.New("test availability window has closed")
	ErrAttemptLimitReached = errors.New("attempt limit reached")

	ErrNoActiveAttempt         = errors.New("no in-progress attempt found")
	ErrAttemptAlreadyCompleted = errors.New("attempt already completed")
)
