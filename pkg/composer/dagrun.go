package composer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/andrej220/composerun/pkg/runlog"
)

// logTailLines bounds the raw-log excerpt carried in a RunStatus.
const logTailLines = 25

// TriggerOptions shape one TriggerDAGRun call.
type TriggerOptions struct {
	// RunID names the new run. Empty means a generated
	// "manual__<uuid>" id, which also makes the trigger idempotent to
	// retry on the caller's side.
	RunID string
	// Conf is passed to the run as a compact-JSON --conf argument.
	Conf map[string]any
	// NoWait returns right after submission instead of polling the
	// trigger command to completion.
	NoWait bool

	Poll PollOptions
}

// TriggerResult reports a triggered run: the generated or caller-given
// run id, the execution handle, and, unless NoWait was set, the trigger
// command's final output.
type TriggerResult struct {
	RunID  string
	Handle ExecutionHandle
	Polled bool
	Result PollResult
}

// RunStatus is the resolved state of one DAG run plus the diagnostics
// that came with it.
type RunStatus struct {
	DagID       string          `json:"dag_id"`
	RunID       string          `json:"run_id,omitempty"`
	LogicalDate string          `json:"logical_date,omitempty"`
	State       runlog.RunState `json:"state"`
	ExitCode    *int            `json:"exit_code"`
	Err         string          `json:"error,omitempty"`
	LogTail     []string        `json:"log_tail,omitempty"`
}

// TriggerDAGRun starts dagID via "dags trigger" and, unless opts.NoWait
// is set, polls the trigger command until it finishes.
func (c *Client) TriggerDAGRun(ctx context.Context, dagID string, opts TriggerOptions) (TriggerResult, error) {
	runID := opts.RunID
	if runID == "" {
		runID = "manual__" + uuid.NewString()
	}

	params := []string{dagID, "--run-id=" + runID}
	if opts.Conf != nil {
		conf, err := json.Marshal(opts.Conf)
		if err != nil {
			return TriggerResult{}, fmt.Errorf("composer: encode conf: %w", err)
		}
		params = append(params, "--conf="+string(conf))
	}

	h, err := c.Execute(ctx, Command{Command: "dags", Subcommand: "trigger", Parameters: params})
	if err != nil {
		return TriggerResult{}, err
	}
	out := TriggerResult{RunID: runID, Handle: h}
	if opts.NoWait {
		return out, nil
	}

	res, err := c.Poll(ctx, h, opts.Poll)
	if err != nil {
		return out, err
	}
	out.Polled = true
	out.Result = res
	return out, nil
}

// RunStateByLogicalDate resolves a run's state through
// "dags state <dag> <logical_date>". Most CLI versions print the bare
// state on the last line, so the logs are scanned bottom-up for a state
// token; no match is reported as StateUnknown, not as an error.
func (c *Client) RunStateByLogicalDate(ctx context.Context, dagID, logicalDate string, opts PollOptions) (RunStatus, error) {
	cmd := Command{Command: "dags", Subcommand: "state", Parameters: []string{dagID, logicalDate}}
	res, err := c.Run(ctx, cmd, opts)
	if err != nil {
		return RunStatus{}, err
	}
	return RunStatus{
		DagID:       dagID,
		LogicalDate: logicalDate,
		State:       runlog.ScanState(res.Logs),
		ExitCode:    res.ExitCode,
		Err:         res.Err,
		LogTail:     tail(res.Logs, logTailLines),
	}, nil
}

// RunStateByRunID resolves a run's state through
// "dags list-runs -d <dag> -o json", filtering client-side for runID.
// When the JSON payload cannot be extracted (pre-JSON CLI versions, or
// noise swallowed the array) it falls back to scanning the tabular
// output for the run id.
func (c *Client) RunStateByRunID(ctx context.Context, dagID, runID string, opts PollOptions) (RunStatus, error) {
	res, err := c.Run(ctx, listRunsCommand(dagID), opts)
	if err != nil {
		return RunStatus{}, err
	}

	status := RunStatus{
		DagID:    dagID,
		RunID:    runID,
		State:    runlog.StateUnknown,
		ExitCode: res.ExitCode,
		Err:      res.Err,
		LogTail:  tail(res.Logs, logTailLines),
	}

	records := runlog.ExtractRecords(strings.Join(res.Logs, "\n"))
	if rec, err := runlog.FindByRunID(records, runID); err == nil {
		status.State = rec.RunState()
		status.LogicalDate = rec.RecencyKey()
		return status, nil
	}
	if len(records) > 0 {
		// payload parsed but the run is not in it
		return status, runlog.ErrNotFound
	}

	status.State = runlog.ScanStateForRun(res.Logs, runID)
	return status, nil
}

// ListDAGRuns returns every run of dagID the backend reports, newest
// payload wins. An empty slice is a normal outcome for a DAG that has
// never run.
func (c *Client) ListDAGRuns(ctx context.Context, dagID string, opts PollOptions) ([]runlog.RunRecord, error) {
	res, err := c.Run(ctx, listRunsCommand(dagID), opts)
	if err != nil {
		return nil, err
	}
	return runlog.ExtractRecords(strings.Join(res.Logs, "\n")), nil
}

// LatestDAGRun returns the most recent run of dagID, by logical date
// with execution and start date fallbacks. A DAG with no runs yields
// runlog.ErrNotFound.
func (c *Client) LatestDAGRun(ctx context.Context, dagID string, opts PollOptions) (runlog.RunRecord, error) {
	runs, err := c.ListDAGRuns(ctx, dagID, opts)
	if err != nil {
		return runlog.RunRecord{}, err
	}
	return runlog.MostRecent(runs)
}

func listRunsCommand(dagID string) Command {
	return Command{
		Command:    "dags",
		Subcommand: "list-runs",
		Parameters: []string{"-d", dagID, "-o", "json"},
	}
}

func tail(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
