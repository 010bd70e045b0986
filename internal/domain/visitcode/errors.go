package visitcode

import "errors"

var (
	ErrNotFound    = errors.New("visit code not found")
	ErrAlreadyUsed = errors.New("visit code already used")
	ErrExpired     = errors.New("visit code expired")
	ErrInactive    = errors.New("visit code inactive")
	ErrStore       = errors.New("visit code store failure")
)
