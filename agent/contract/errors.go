package contract

import "errors"

var (
	ErrUpstream        = errors.New("upstream call failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")

	// ErrRaceCondition names interleaved same-session turns. It is never
	// returned: the orchestrator serialises turns per session instead.
	ErrRaceCondition = errors.New("concurrent turn for the same session")
)
