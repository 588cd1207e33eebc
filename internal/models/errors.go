package models

import "errors"

// Failure classes of a login attempt. Call sites wrap these with context;
// callers match with errors.Is. None of them is retried automatically.
var (
	ErrConfiguration      = errors.New("configuration error")
	ErrRandomGeneration   = errors.New("random generation error")
	ErrNetwork            = errors.New("network error")
	ErrParse              = errors.New("parse error")
	ErrMissingSessionData = errors.New("missing session data")
	ErrUserAgent          = errors.New("user agent error")
	ErrConflict           = errors.New("login already in progress")
)
