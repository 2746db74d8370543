package composer

import (
	"fmt"
	"strings"
)

// SubmissionError reports a launch response missing one of the required
// handle fields. The command may or may not be running on the backend;
// without a complete handle it cannot be polled.
type SubmissionError struct {
	Missing []string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("composer: execute response missing %s", strings.Join(e.Missing, ", "))
}

// TransportError reports a non-success HTTP status from the control
// plane. Body holds a bounded excerpt of the response for diagnostics.
// Transport failures are fatal for the call that hit them and are never
// retried inside this package; retry policy belongs to the supplied
// HTTP doer (see pkg/httpx).
type TransportError struct {
	Op     string
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("composer: %s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("composer: %s: HTTP %d: %s", e.Op, e.Status, e.Body)
}
