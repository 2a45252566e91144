package errors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalid          = errors.New("invalid")
	ErrTransient        = errors.New("transient service error")
	ErrPermanent        = errors.New("permanent service error")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrUnavailable      = errors.New("service unavailable")
	ErrSessionClosed    = errors.New("session closed")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}
