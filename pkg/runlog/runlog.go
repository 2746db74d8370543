// Package runlog interprets the free-form log output of Airflow CLI
// commands: it extracts the JSON payload of "dags list-runs -o json",
// scans for scalar run-state tokens, and resolves a run out of the
// extracted records by id or by recency.
//
// Everything here is a pure function of the log text. The CLI output
// format is unversioned, so all extraction is best effort: a miss is a
// value (StateUnknown, nil slice, ErrNotFound), never an error that
// aborts the caller.
package runlog

import (
	"errors"
	"strings"
)

// RunState is the lifecycle state of a DAG run as printed by the CLI.
type RunState string

const (
	StateSuccess         RunState = "success"
	StateFailed          RunState = "failed"
	StateRunning         RunState = "running"
	StateQueued          RunState = "queued"
	StateUpForRetry      RunState = "up_for_retry"
	StateUpForReschedule RunState = "up_for_reschedule"
	StateSkipped         RunState = "skipped"
	StateNone            RunState = "none"

	// StateUnknown is returned when no known token matches. It is not a
	// member of the closed set and never round-trips through ParseState.
	StateUnknown RunState = "unknown"
)

var knownStates = map[RunState]struct{}{
	StateSuccess:         {},
	StateFailed:          {},
	StateRunning:         {},
	StateQueued:          {},
	StateUpForRetry:      {},
	StateUpForReschedule: {},
	StateSkipped:         {},
	StateNone:            {},
}

// ParseState matches a raw token against the closed state set,
// case-insensitively and ignoring surrounding whitespace.
func ParseState(token string) (RunState, bool) {
	s := RunState(strings.ToLower(strings.TrimSpace(token)))
	_, ok := knownStates[s]
	if !ok {
		return StateUnknown, false
	}
	return s, true
}

// RunRecord is one DAG run as emitted by "dags list-runs -o json".
// Records are reconstructed fresh from each poll's log text and never
// persisted. Date fields stay ISO-8601 strings: the CLI prints them
// that way and lexicographic comparison is correct as long as all
// timestamps share a timezone representation (documented limitation).
type RunRecord struct {
	RunID           string         `json:"run_id"`
	State           string         `json:"state"`
	LogicalDate     string         `json:"logical_date"`
	ExecutionDate   string         `json:"execution_date"`
	StartDate       string         `json:"start_date"`
	EndDate         string         `json:"end_date"`
	ExternalTrigger any            `json:"external_trigger"`
	Conf            map[string]any `json:"conf"`
}

// RunState normalizes the record's raw state field.
func (r RunRecord) RunState() RunState {
	if s, ok := ParseState(r.State); ok {
		return s
	}
	return StateUnknown
}

// RecencyKey is the timestamp used to order records by recency, with
// fallback precedence logical_date, execution_date, start_date, "".
func (r RunRecord) RecencyKey() string {
	switch {
	case r.LogicalDate != "":
		return r.LogicalDate
	case r.ExecutionDate != "":
		return r.ExecutionDate
	default:
		return r.StartDate
	}
}

// ErrNotFound reports that no record matched a selection key. An empty
// record collection is a normal outcome, not a failure.
var ErrNotFound = errors.New("runlog: no matching run")
