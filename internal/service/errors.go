package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
)

// Agent / queue specific errors
var (
	ErrAgentNotFound      = errors.New("agent not found")
	ErrAgentNotReady      = errors.New("agent does not have an active submission")
	ErrSubmissionNotBuilt = errors.New("active submission has not built successfully")
)

// Pairing / match specific errors
var (
	ErrSameAgent            = errors.New("cannot match agent against itself")
	ErrDifferentEnvironment = errors.New("agents must be in the same environment")
	ErrMatchNotFound        = errors.New("match not found")
)
