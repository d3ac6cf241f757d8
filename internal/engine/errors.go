package engine

import "errors"

// Sentinel errors for model construction, fitting and prediction. Callers
// classify failures with errors.Is and map them onto transport-level codes.
var (
	// ErrDimensions reports an event map record whose parallel sequences
	// are missing or have mismatched lengths.
	ErrDimensions = errors.New("invalid record dimensions")

	// ErrInvalidType reports a settings field or payload value of the
	// wrong type or outside its valid range.
	ErrInvalidType = errors.New("invalid value type")

	// ErrTimestampType reports a timestamp that is not numeric.
	ErrTimestampType = errors.New("timestamp must be numeric")

	// ErrUnknownStrategy reports a sampling, weighting or ranking name
	// outside the closed set of implemented strategies.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrMissingParameter reports a settings combination that requires a
	// companion field which was not provided.
	ErrMissingParameter = errors.New("missing required parameter")

	// ErrUnsupportedInput reports a payload shape the caller cannot
	// dispatch, such as a scalar where an object or array is expected.
	ErrUnsupportedInput = errors.New("unsupported input type")

	// ErrNotFitted reports a prediction or persistence request against a
	// model that holds no session data yet.
	ErrNotFitted = errors.New("model is not fitted")

	// ErrSessionTooShort reports an evaluation session with too few
	// events to split into a query part and a hidden part.
	ErrSessionTooShort = errors.New("session too short to evaluate")
)
