package assessment

import "errors"

var (
	// ErrInvalidAssessmentType is returned before any generation call when
	// the requested type is not one of Types.
	ErrInvalidAssessmentType = errors.New("invalid assessment type")

	// ErrInvalidRequest reports a request with missing or out-of-range fields.
	ErrInvalidRequest = errors.New("invalid assessment request")

	// ErrNoStructuredPayload means the generator output held no bracketed array.
	ErrNoStructuredPayload = errors.New("no valid JSON found in the response")

	// ErrMalformedPayload means the bracketed region did not parse as JSON.
	ErrMalformedPayload = errors.New("malformed JSON payload")

	// ErrUnexpectedShape means the payload, or one of its questions, did not
	// have the shape the prompt asked for.
	ErrUnexpectedShape = errors.New("invalid assessment format")

	ErrPersistenceWriteFailed  = errors.New("failed to save assessment")
	ErrPersistenceUpdateFailed = errors.New("failed to update answers")

	// ErrNotFound is returned by stores when no record has the given id.
	ErrNotFound = errors.New("assessment not found")
)
