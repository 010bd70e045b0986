package cover

import "errors"

var (
	ErrNotFound        = errors.New("cover link request not found")
	ErrValidation      = errors.New("cover link request validation failed")
	ErrAlreadyReviewed = errors.New("cover link request already reviewed")
)
