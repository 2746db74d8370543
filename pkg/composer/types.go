// Package composer is a client for the Cloud Composer Airflow command
// surface: it launches an Airflow CLI command inside a managed
// environment and polls the command's log output through an
// incremental line cursor until the command finishes.
//
// The control plane has no structured result channel for CLI commands.
// Everything a command produces comes back as numbered log lines, and
// the typed results in this module (run records, run states) are
// recovered from that text by package runlog.
package composer

import "fmt"

// Environment identifies one Composer environment.
type Environment struct {
	Project  string
	Location string
	Name     string
}

// ResourceName renders the environment's fully qualified resource name,
// projects/<p>/locations/<l>/environments/<e>.
func (e Environment) ResourceName() string {
	return fmt.Sprintf("projects/%s/locations/%s/environments/%s", e.Project, e.Location, e.Name)
}

// Command describes one Airflow CLI invocation, e.g.
// {"dags", "trigger", ["my_dag", "--run-id=manual__x"]}. Parameters are
// passed through verbatim; the caller owns quoting of any embedded
// structured argument such as a serialized --conf value.
type Command struct {
	Command    string   `json:"command"`
	Subcommand string   `json:"subcommand"`
	Parameters []string `json:"parameters"`
}

// ExecutionHandle is the opaque identity of one in-flight command,
// returned by Execute. All three fields must be sent back unchanged on
// every poll request; the backend rejects mismatches.
type ExecutionHandle struct {
	ExecutionID  string `json:"executionId"`
	Pod          string `json:"pod"`
	PodNamespace string `json:"podNamespace"`
}

// LogLine is one line of command output. Lines are append-only and
// strictly ordered per handle. LineNumber is monotonically increasing
// but whether numbering starts at 0 or 1 depends on the backend
// version, so no origin is assumed anywhere.
type LogLine struct {
	LineNumber int    `json:"lineNumber"`
	Content    string `json:"content"`
}

// PollResult is the outcome of one polling session. Terminal is true
// exactly when the backend reported the end of output; a timed-out
// session returns Terminal=false with the logs gathered so far and a
// timeout message in Err.
type PollResult struct {
	Logs     []string
	ExitCode *int
	Err      string
	Terminal bool
}

// wire bodies

type executeResponse struct {
	ExecutionID  string `json:"executionId"`
	Pod          string `json:"pod"`
	PodNamespace string `json:"podNamespace"`
	Error        string `json:"error"`
}

type pollRequest struct {
	ExecutionID    string `json:"executionId"`
	Pod            string `json:"pod"`
	PodNamespace   string `json:"podNamespace"`
	NextLineNumber int    `json:"nextLineNumber"`
}

type exitInfo struct {
	ExitCode *int   `json:"exitCode"`
	Error    string `json:"error"`
}

type pollResponse struct {
	Output    []LogLine `json:"output"`
	OutputEnd bool      `json:"outputEnd"`
	ExitInfo  *exitInfo `json:"exitInfo"`
}
