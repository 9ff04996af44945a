package domain

import "errors"

// Rejections reported by the round engine. All of them are recoverable and
// leave the session unchanged.
var (
	// ErrInvalidOperation reports an action on a property not eligible for it,
	// such as revealing a benchmark twice or buying the same house twice.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrInsufficientBudget reports a purchase whose price exceeds the budget.
	ErrInsufficientBudget = errors.New("insufficient budget")
	// ErrAllowanceExhausted reports a benchmark reveal with no checks left.
	ErrAllowanceExhausted = errors.New("check allowance exhausted")
	// ErrUnknownProperty reports a property id missing from the catalog or not yet shown.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrSequence reports an operation attempted in the wrong phase.
	ErrSequence = errors.New("sequence error")
	// ErrRoundExhausted signals that every candidate of the round has been shown.
	ErrRoundExhausted = errors.New("round exhausted")
	// ErrSessionNotFound reports an unknown or foreign session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSimulationNotFound reports an unknown simulation run id.
	ErrSimulationNotFound = errors.New("simulation not found")
)

// ErrorKind returns a stable machine-readable name for err, or "internal"
// when err is not one of the domain rejections.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, ErrInsufficientBudget):
		return "insufficient_budget"
	case errors.Is(err, ErrAllowanceExhausted):
		return "allowance_exhausted"
	case errors.Is(err, ErrUnknownProperty):
		return "unknown_property"
	case errors.Is(err, ErrSequence):
		return "sequence_error"
	case errors.Is(err, ErrRoundExhausted):
		return "round_exhausted"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSimulationNotFound):
		return "simulation_not_found"
	default:
		return "internal"
	}
}
