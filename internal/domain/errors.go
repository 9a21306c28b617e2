package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidDefinition = errors.New("invalid model definition")
	ErrNoParticles       = errors.New("no particles")
)
