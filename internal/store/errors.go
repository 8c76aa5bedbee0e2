package store

import "errors"

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrDuplicateKey      = errors.New("already exists")
	ErrUpdateTerminalJob = errors.New("job already reached a terminal status")
)
