package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrLockHeld            = errors.New("lock already held")
	ErrDataUnavailable     = errors.New("price data unavailable")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConfiguration       = errors.New("invalid configuration")
)
