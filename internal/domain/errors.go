package domain

import "errors"

var (
	ErrUnknownMode  = errors.New("unknown focus mode")
	ErrInvalidFrame = errors.New("invalid message format")
	ErrNotFound     = errors.New("not found")
)
