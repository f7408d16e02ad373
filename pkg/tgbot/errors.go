package tgbot

import (
	"context"
	"errors"
)

var (
	// ErrNilHandler indicates a nil handler registration.
	ErrNilHandler = errors.New("tgbot: nil handler")
	// ErrHandlerCanceled lets a handler report that it abandoned the update
	// because its work was canceled rather than failed.
	ErrHandlerCanceled = errors.New("tgbot: handler canceled")
	// ErrAlreadyRunning indicates a second concurrent service start.
	ErrAlreadyRunning = errors.New("tgbot: service already running")
	// ErrHandlerAlreadyRegistered indicates a duplicate named registration.
	ErrHandlerAlreadyRegistered = errors.New("tgbot: handler already registered")
)

// IsCancellation reports whether err means the operation was canceled rather
// than failed.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrHandlerCanceled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
