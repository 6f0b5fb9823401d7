package correlator

import "fmt"

// BatchTimeoutError is returned when a batch does not finish in time.
// Unresolved lists the request indices that never completed.
type BatchTimeoutError struct {
	Unresolved []int
}

func (e *BatchTimeoutError) Error() string {
	return fmt.Sprintf("batch timed out with %d unresolved request(s): %v", len(e.Unresolved), e.Unresolved)
}
