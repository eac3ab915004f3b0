package urlvalidate

import "errors"

var (
	ErrInvalid        = errors.New("invalid url")
	ErrBlocked        = errors.New("blocked by ssrf policy")
	ErrSuspiciousPath = errors.New("suspicious path pattern")
	ErrInvalidHeader  = errors.New("invalid header")
)
