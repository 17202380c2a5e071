package store

import "errors"

// ErrConversationNotFound is returned when an operation references a
// conversation id that does not exist.
var ErrConversationNotFound = errors.New("store: conversation not found")

// ErrMissingModelRef is returned when appending an assistant message
// without a modelRef: no assistant message may persist without one.
var ErrMissingModelRef = errors.New("store: assistant message requires a model ref")

// ErrOrphanMessage is returned when appendMessage targets an unknown
// conversation id.
var ErrOrphanMessage = errors.New("store: message references unknown conversation")
