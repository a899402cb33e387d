package services

import "errors"

// Reduction service errors
var (
	ErrReductionNotFound = errors.New("reduction not found")
	ErrInvalidPath       = errors.New("path must be relative to the data directory")
)
