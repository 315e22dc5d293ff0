package user

import "errors"

var (
	ErrNotFound          = errors.New("user not found")
	ErrUsernameTaken     = errors.New("username already in use")
	ErrEmailTaken        = errors.New("email already in use")
	ErrLastAdmin         = errors.New("cannot remove the last admin")
	ErrResetTokenInvalid = errors.New("reset token invalid or expired")

	// ErrStateChanged means a conditional update matched no row because the
	// record no longer held the expected code or flag.
	ErrStateChanged = errors.New("user state changed concurrently")
)
