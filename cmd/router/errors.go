package main

// exitError lets a subcommand's RunE carry a specific exit code back
// to Execute without every command hand-rolling os.Exit.
type exitError struct{ code int }

func (e *exitError) Error() string { return "" }

func exitErr(code int) error { return &exitError{code: code} }
