package postgres

import "errors"

var (
	ErrNilPool       = errors.New("connection pool is nil")
	ErrInvalidAppKey = errors.New("app encryption key must be 32 bytes")
)
