package application

import "errors"

var (
	ErrServiceNotStarted     = errors.New("service not started")
	ErrServiceAlreadyStarted = errors.New("service already started")
	ErrServiceStopped        = errors.New("service stopped")
)
