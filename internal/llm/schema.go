package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidOutput marks model output that decoded but failed validation.
// Callers distinguish this from transport errors to decide on fallbacks.
var ErrInvalidOutput = errors.New("llm output failed validation")

// Validator is implemented by phase output types that carry their own
// well-formedness rules (required fields, enum membership).
type Validator interface {
	Validate() error
}

// DecodeValidated unmarshals raw model output into out and runs its
// validation. Both decode failures and validation failures surface as
// ErrInvalidOutput so callers can treat malformed output uniformly.
func DecodeValidated(raw json.RawMessage, out Validator) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return nil
}
