package config

import "errors"

// ErrConfigInvalid wraps every parse/validation failure Load and Parse
// return, so callers can test with errors.Is regardless of the
// underlying cause.
var ErrConfigInvalid = errors.New("config: invalid configuration")
