package search

import "fmt"

// ConnectionError means the vector index could not be opened at all
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("error connecting to vector index at '%s': %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RetrievalError means the index was reachable but the collection was missing
// or the similarity query failed
type RetrievalError struct {
	Collection string
	Err        error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("error during semantic search in collection '%s': %v. Ensure collection exists and data is loaded", e.Collection, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}
