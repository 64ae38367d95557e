package rightmove

import "fmt"

// TransientFetchFailure is a failed HTTP exchange: a transport error or a
// non-200 status. It is retried.
type TransientFetchFailure struct {
	Outcode    int
	StatusCode int
	Err        error
}

func (e *TransientFetchFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("outcode %d: fetch failed: %v", e.Outcode, e.Err)
	}
	return fmt.Sprintf("outcode %d: unexpected status %d", e.Outcode, e.StatusCode)
}

func (e *TransientFetchFailure) Unwrap() error { return e.Err }

// ParseFailure means the page arrived but its payload had an unexpected
// shape. It is not retried inline.
type ParseFailure struct {
	Reason string
	Err    error
}

func (e *ParseFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: %s: %v", e.Reason, e.Err)
	}
	return "parse: " + e.Reason
}

func (e *ParseFailure) Unwrap() error { return e.Err }

// RetrievalFailure is returned when every fetch attempt for a page failed.
type RetrievalFailure struct {
	Outcode  int
	Attempts int
	Err      error
}

func (e *RetrievalFailure) Error() string {
	return fmt.Sprintf("outcode %d: retrieval failed after %d attempts: %v", e.Outcode, e.Attempts, e.Err)
}

func (e *RetrievalFailure) Unwrap() error { return e.Err }
