package engine

import "errors"

// Operation errors, signaled to the caller and mapped to single-line user
// messages by HandleEvent. None of them leaves partial state behind: a
// failed operation commits nothing and the board cache is never ahead of
// the store.
var (
	ErrAlreadyPlaying  = errors.New("user already in a game")
	ErrNotPlaying      = errors.New("user has no ongoing game")
	ErrNotYourTurn     = errors.New("not this user's turn")
	ErrInvalidNotation = errors.New("move notation not understood")
	ErrIllegalMove     = errors.New("move not legal in this position")

	// ErrStoreUnavailable is transient: the store transaction could not be
	// opened or committed. The user is told to retry; no state changed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvariant marks a state that should be unreachable (for example a
	// seat claim returning a still-pending game). Logged with full context,
	// surfaced to the user as a generic temporary failure, never a panic.
	ErrInvariant = errors.New("invariant violation")
)
