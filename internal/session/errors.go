package session

import "errors"

// Errors surfaced by the session store. None of them is fatal: the
// caller maps each one to a user-facing reply and the store stays
// usable afterwards.
var (
	// ErrBlocked indicates the user is on the block list and may not
	// even be offered the challenge.
	ErrBlocked = errors.New("user is blocked")

	// ErrNoChallenge indicates there is no challenge in progress for
	// the user; the flow must be restarted.
	ErrNoChallenge = errors.New("no challenge in progress")

	// ErrNotAReply indicates the message was not a direct reply to the
	// active challenge prompt. Retryable: the challenge stays pending.
	ErrNotAReply = errors.New("message is not a reply to the challenge prompt")

	// ErrChallengeMismatch indicates a wrong answer. Terminal for the
	// attempt: the user must restart the flow.
	ErrChallengeMismatch = errors.New("challenge answer mismatch")

	// ErrSessionExpired indicates the session passed its inactivity
	// timeout and has been removed.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotAuthenticated indicates no session exists for the user.
	ErrNotAuthenticated = errors.New("user is not authenticated")
)
