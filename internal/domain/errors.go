package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidPrompt      = errors.New("invalid prompt")
	ErrUpgradeRequired    = errors.New("free generations exhausted")
	ErrUnsupportedPlan    = errors.New("unsupported plan")
	ErrDuplicateOperation = errors.New("duplicate operation")
)
