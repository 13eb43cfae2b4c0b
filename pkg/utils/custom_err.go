package utils

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrSiteNotFound         = errors.New("site not found")
	ErrContainerNotFound    = errors.New("container not found")
	ErrContainerUnavailable = errors.New("container unavailable")
	ErrConflict             = errors.New("concurrent update conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrAlreadyExists        = errors.New("already exists")
	ErrForbidden            = errors.New("forbidden")
	ErrBillingUnavailable   = errors.New("billing system unavailable")
)
