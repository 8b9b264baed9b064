package types

import "errors"

// Error taxonomy shared by the amount codec, the position reader and the
// transaction pipeline. Callers match with errors.Is; concrete errors wrap
// one of these with context.
var (
	// ErrInvalidAmount is returned for malformed decimal input.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrValidation is returned when an amount violates a balance, staked or
	// withdrawable precondition. No network call has been made.
	ErrValidation = errors.New("validation failed")

	// ErrRead wraps a failed position or balance query.
	ErrRead = errors.New("read failed")

	// ErrSubmission is returned when the wallet or node rejects a call
	// before it is included in a block.
	ErrSubmission = errors.New("submission rejected")

	// ErrChainFailure marks a transaction that was included but reverted.
	ErrChainFailure = errors.New("transaction reverted")

	// ErrTimeout marks a transaction whose confirmation wait hit the ceiling.
	ErrTimeout = errors.New("confirmation timed out")

	// ErrAlreadyPending is returned when an action slot already holds an
	// in-flight transaction.
	ErrAlreadyPending = errors.New("transaction already pending")

	// ErrNoSigner is returned for write operations without a connected
	// account or signer.
	ErrNoSigner = errors.New("no account or signer connected")

	// ErrInvalidTransition guards the transaction state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)
