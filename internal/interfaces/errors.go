package interfaces

import "errors"

// Failure taxonomy shared by every collaborator implementation. Callers
// branch with errors.Is; implementations wrap these with fmt.Errorf("%w: ...").
var (
	// ErrDataUnavailable marks a market-data fetch failure or timeout.
	// The current pair's cycle is skipped, never the whole loop.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrAdvisory marks a failed or malformed AI advisory call. Callers
	// degrade to a HOLD with confidence 0.
	ErrAdvisory = errors.New("advisory call failed")

	// ErrExecution marks a rejected or failed order (insufficient funds,
	// exchange rejection, network error).
	ErrExecution = errors.New("order execution failed")

	// ErrPersistence marks a storage write failure. After a successful
	// fill this is a reconciliation condition: the write is retried, the
	// trade is never dropped.
	ErrPersistence = errors.New("persistence write failed")
)
