package engine

import "fmt"

// FailureCategory classifies a pipeline failure for callers and logs.
type FailureCategory string

// Failure categories. Reads never fail the request (they degrade to empty
// context and are only logged); everything below is surfaced to the caller.
const (
	FailureValidation FailureCategory = "validation"
	FailureEmbedding  FailureCategory = "embedding"
	FailureStoreWrite FailureCategory = "store_write"
	FailureEscalation FailureCategory = "escalation"
)

// PipelineError is the error surfaced by Store and Retrieve. Store-write
// failures carry the name of the store that failed.
type PipelineError struct {
	Category FailureCategory
	Store    string
	Err      error
}

func (e *PipelineError) Error() string {
	if e.Store != "" {
		return fmt.Sprintf("engine: %s (%s): %v", e.Category, e.Store, e.Err)
	}
	return fmt.Sprintf("engine: %s: %v", e.Category, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// writeError tags a fatal write failure with the store that produced it.
func writeError(store string, err error) *PipelineError {
	return &PipelineError{Category: FailureStoreWrite, Store: store, Err: err}
}
