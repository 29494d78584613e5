package sonar

import "fmt"

// TransientFetchError is a network or HTTP failure while fetching one page.
// Retries are exhausted by the time the caller sees it.
type TransientFetchError struct {
	Project string
	Page    int
	Status  int // zero for transport errors
	Err     error
}

func (e *TransientFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s page %d: HTTP %d: %v", e.Project, e.Page, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s page %d: %v", e.Project, e.Page, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// MalformedResponseError is returned when a page violates the API contract.
type MalformedResponseError struct {
	Project string
	Page    int
	Reason  string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response for %s page %d: %s", e.Project, e.Page, e.Reason)
}
