package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)

// Pipeline error taxonomy. Evidence and generation failures escalate to the
// run boundary; grading and search-tool failures are absorbed locally.
var (
	// ErrRetrievalFailed indicates that similarity search or indexing failed
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrGenerationFailed indicates that answer generation failed
	ErrGenerationFailed = errors.New("generation failed")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
