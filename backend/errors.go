package main

import "errors"

var (
	// ErrDuplicateActiveSession rejects a second connection for an
	// identity that is mid-match on another connection.
	ErrDuplicateActiveSession = errors.New("username already in an active match")

	// ErrUnknownIdentity marks operations referencing an identity with
	// no session.
	ErrUnknownIdentity = errors.New("unknown username")

	// ErrReconnectExpired marks a reconnect attempt past the grace
	// window (the session no longer exists).
	ErrReconnectExpired = errors.New("reconnect window expired")
)

// Invalid-move reasons surfaced through invalid_move notices or logged
// on silent rejections.
const (
	reasonColumnOutOfRange = "column-out-of-range"
	reasonColumnFull       = "column-full"
	reasonNotYourTurn      = "not-your-turn"
	reasonNoSuchGame       = "no-such-game"
)
