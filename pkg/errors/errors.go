// Package errors provides error wrapping utilities for context-aware error messages
// and the sentinel errors a session can surface to the user.
package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// ErrInvalidFileType is returned when an ingested file is not declared as an image.
	ErrInvalidFileType = stderrors.New("please upload an image file (JPG, PNG, WEBP)")

	// ErrFileTooLarge matches every error built by FileTooLarge.
	ErrFileTooLarge = stderrors.New("file size exceeds limit")

	// ErrRemoteRemoval is returned when the background-removal call fails.
	ErrRemoteRemoval = stderrors.New("failed to remove background")

	// ErrRemoteBorder is returned when the border-application call fails.
	ErrRemoteBorder = stderrors.New("failed to add border")
)

// SizeError reports a file over the configured size limit. It matches
// ErrFileTooLarge.
type SizeError struct {
	Limit int64
}

// FileTooLarge returns the error for a file larger than limit bytes
func FileTooLarge(limit int64) error {
	return &SizeError{Limit: limit}
}

func (e *SizeError) Error() string {
	return "file size exceeds " + FormatSize(e.Limit) + " limit"
}

// Is lets errors.Is(err, ErrFileTooLarge) match a SizeError
func (e *SizeError) Is(target error) bool {
	return target == ErrFileTooLarge
}

// FormatSize renders n bytes as whole MB or KB when it divides evenly
func FormatSize(n int64) string {
	switch {
	case n > 0 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n > 0 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Mark attaches a sentinel to err so callers can match it with Is
// while the underlying cause stays in the chain.
func Mark(err, sentinel error) error {
	if err == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// IsUserError reports whether err stems from rejected input rather than a remote failure.
func IsUserError(err error) bool {
	return Is(err, ErrInvalidFileType) || Is(err, ErrFileTooLarge)
}
