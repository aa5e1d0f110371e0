// errors/gateway_errors.go

package errors

import "errors"

var (
	ErrCacheFull      = errors.New("cache is full, cannot add more archives")
	ErrInternalServer = errors.New("internal server error")
	ErrRateLimited    = errors.New("rate limit exceeded")
)
