package domain

import "errors"

var (
	// ErrDraftConsumed means the draft was already turned into a booking
	// (or never existed) when the confirming transaction ran.
	ErrDraftConsumed = errors.New("booking draft already consumed")
	ErrNotFound      = errors.New("not_found")
)
