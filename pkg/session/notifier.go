package session

import (
	"log/slog"

	"github.com/pixelkit/bgremover/pkg/errors"
)

// Notifier shows a notice to the user when an operation fails
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(err error)

func (f NotifierFunc) Notify(err error) { f(err) }

// LogNotifier writes notices to the default logger
type LogNotifier struct{}

func (LogNotifier) Notify(err error) {
	slog.Warn("session_notice", "message", Notice(err))
}

// Notice returns the text shown to the user for err. Remote failures get a
// generic message; the cause is only logged.
func Notice(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errors.ErrInvalidFileType):
		return errors.ErrInvalidFileType.Error()
	case errors.Is(err, errors.ErrFileTooLarge):
		var se *errors.SizeError
		if errors.As(err, &se) {
			return se.Error()
		}
		return errors.ErrFileTooLarge.Error()
	case errors.Is(err, errors.ErrRemoteRemoval):
		return errors.ErrRemoteRemoval.Error()
	case errors.Is(err, errors.ErrRemoteBorder):
		return errors.ErrRemoteBorder.Error()
	default:
		return "something went wrong, please try again"
	}
}
