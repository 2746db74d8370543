package composer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/composerun/pkg/runlog"
)

const listRunsJSON = `[` +
	`{"run_id":"manual__a","state":"success","logical_date":"2025-01-01T00:00:00+00:00"},` +
	`{"run_id":"manual__b","state":"failed","logical_date":"2025-02-01T00:00:00+00:00"},` +
	`{"run_id":"manual__c","state":"running","logical_date":"2025-01-15T00:00:00+00:00"}` +
	`]`

func listRunsBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{
		t:        t,
		execResp: okExec(),
		pollResps: []pollResponse{{
			Output: lines(0,
				"scheduler chatter before the payload",
				listRunsJSON,
				"command exited"),
			OutputEnd: true,
			ExitInfo:  &exitInfo{ExitCode: intp(0)},
		}},
	}
}

func TestTriggerDAGRun(t *testing.T) {
	backend := &fakeBackend{
		t:        t,
		execResp: okExec(),
		pollResps: []pollResponse{{
			Output:    lines(0, "Created <DagRun my_dag @ 2025-08-29: manual__x>"),
			OutputEnd: true,
			ExitInfo:  &exitInfo{ExitCode: intp(0)},
		}},
	}
	c := newTestClient(t, backend)

	out, err := c.TriggerDAGRun(context.Background(), "my_dag", TriggerOptions{
		Conf: map[string]any{"param1": "value1"},
		Poll: fastPoll(),
	})
	require.NoError(t, err)
	assert.True(t, out.Polled)
	assert.True(t, out.Result.Terminal)
	assert.True(t, strings.HasPrefix(out.RunID, "manual__"), "generated run id, got %q", out.RunID)

	require.Len(t, backend.execCmds, 1)
	cmd := backend.execCmds[0]
	assert.Equal(t, "dags", cmd.Command)
	assert.Equal(t, "trigger", cmd.Subcommand)
	require.Len(t, cmd.Parameters, 3)
	assert.Equal(t, "my_dag", cmd.Parameters[0])
	assert.Equal(t, "--run-id="+out.RunID, cmd.Parameters[1])
	assert.Equal(t, `--conf={"param1":"value1"}`, cmd.Parameters[2])
}

func TestTriggerDAGRunNoWait(t *testing.T) {
	backend := &fakeBackend{t: t, execResp: okExec()}
	c := newTestClient(t, backend)

	out, err := c.TriggerDAGRun(context.Background(), "my_dag", TriggerOptions{
		RunID:  "manual__given",
		NoWait: true,
	})
	require.NoError(t, err)
	assert.False(t, out.Polled)
	assert.Equal(t, "manual__given", out.RunID)
	assert.Equal(t, testHandle(), out.Handle)
	assert.Empty(t, backend.cursors, "no polling expected")
}

func TestRunStateByLogicalDate(t *testing.T) {
	backend := &fakeBackend{
		t:        t,
		execResp: okExec(),
		pollResps: []pollResponse{{
			Output:    lines(0, "queued", "running", "success"),
			OutputEnd: true,
			ExitInfo:  &exitInfo{ExitCode: intp(0)},
		}},
	}
	c := newTestClient(t, backend)

	status, err := c.RunStateByLogicalDate(context.Background(), "my_dag", "2025-08-26T00:00:00+00:00", fastPoll())
	require.NoError(t, err)
	assert.Equal(t, runlog.StateSuccess, status.State)
	assert.Equal(t, "2025-08-26T00:00:00+00:00", status.LogicalDate)

	cmd := backend.execCmds[0]
	assert.Equal(t, "state", cmd.Subcommand)
	assert.Equal(t, []string{"my_dag", "2025-08-26T00:00:00+00:00"}, cmd.Parameters)
}

func TestRunStateByRunID(t *testing.T) {
	c := newTestClient(t, listRunsBackend(t))

	status, err := c.RunStateByRunID(context.Background(), "my_dag", "manual__b", fastPoll())
	require.NoError(t, err)
	assert.Equal(t, runlog.StateFailed, status.State)
	assert.Equal(t, "2025-02-01T00:00:00+00:00", status.LogicalDate)
}

func TestRunStateByRunIDNotInPayload(t *testing.T) {
	c := newTestClient(t, listRunsBackend(t))

	status, err := c.RunStateByRunID(context.Background(), "my_dag", "manual__zzz", fastPoll())
	assert.True(t, errors.Is(err, runlog.ErrNotFound))
	assert.Equal(t, runlog.StateUnknown, status.State)
	assert.NotEmpty(t, status.LogTail)
}

func TestRunStateByRunIDTabularFallback(t *testing.T) {
	backend := &fakeBackend{
		t:        t,
		execResp: okExec(),
		pollResps: []pollResponse{{
			Output: lines(0,
				"dag_id | run_id     | state   | execution_date",
				"my_dag | manual__b  | running | 2025-02-01T00:00:00+00:00"),
			OutputEnd: true,
			ExitInfo:  &exitInfo{ExitCode: intp(0)},
		}},
	}
	c := newTestClient(t, backend)

	status, err := c.RunStateByRunID(context.Background(), "my_dag", "manual__b", fastPoll())
	require.NoError(t, err)
	assert.Equal(t, runlog.StateRunning, status.State)
}

func TestListDAGRuns(t *testing.T) {
	backend := listRunsBackend(t)
	c := newTestClient(t, backend)

	runs, err := c.ListDAGRuns(context.Background(), "my_dag", fastPoll())
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "manual__a", runs[0].RunID)

	cmd := backend.execCmds[0]
	assert.Equal(t, []string{"-d", "my_dag", "-o", "json"}, cmd.Parameters)
}

func TestLatestDAGRun(t *testing.T) {
	c := newTestClient(t, listRunsBackend(t))

	latest, err := c.LatestDAGRun(context.Background(), "my_dag", fastPoll())
	require.NoError(t, err)
	assert.Equal(t, "manual__b", latest.RunID)
}

func TestLatestDAGRunEmpty(t *testing.T) {
	backend := &fakeBackend{
		t:        t,
		execResp: okExec(),
		pollResps: []pollResponse{{
			Output:    lines(0, "No data found"),
			OutputEnd: true,
			ExitInfo:  &exitInfo{ExitCode: intp(0)},
		}},
	}
	c := newTestClient(t, backend)

	_, err := c.LatestDAGRun(context.Background(), "my_dag", fastPoll())
	assert.True(t, errors.Is(err, runlog.ErrNotFound))
}
