package contract

import "errors"

var (
	// ErrConfigMissing marks a deployment defect (absent API key or
	// endpoint). Never retried, surfaced verbatim.
	ErrConfigMissing = errors.New("required configuration is missing")

	ErrModelInvoke     = errors.New("model invoke failed")
	ErrEmptyCompletion = errors.New("model returned empty completion")

	// ErrSchemaViolation marks model output that would corrupt durable
	// state if merged; it is always propagated.
	ErrSchemaViolation = errors.New("model response violates schema")

	// ErrDecisionParse marks an unparseable planning decision.
	ErrDecisionParse = errors.New("planning decision could not be parsed")

	ErrValidation = errors.New("validation failed")
)
