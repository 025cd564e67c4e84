package engine

import "fmt"

// InvalidInputError reports a snapshot that is missing or malforms a required
// field. Optional weighting inputs never produce it; they default instead.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func invalidInput(field, reason string) error {
	return &InvalidInputError{Field: field, Reason: reason}
}

// StructuralError reports a malformed org or authority graph, such as a cycle
// in the parent chain. Evaluators refuse to proceed rather than loop.
type StructuralError struct {
	Reason string
}

func (e *StructuralError) Error() string {
	return "structural error: " + e.Reason
}
