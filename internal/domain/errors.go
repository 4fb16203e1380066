package domain

import "errors"

var (
	ErrStreamerNotFound = errors.New("streamer not found")
	ErrInvalidConfig    = errors.New("invalid broadcaster config")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrSessionClosed    = errors.New("webcast session closed")
)
