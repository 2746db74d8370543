package composer

import (
	"context"
	"fmt"
	"time"

	"github.com/andrej220/composerun/internal/lg"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// PollOptions shape one polling session. Zero values take the package
// defaults.
type PollOptions struct {
	// Timeout is the wall-clock budget for the whole session. Hitting
	// it is a soft outcome reported in PollResult.Err, not an error.
	Timeout time.Duration
	// Interval is the sleep between consecutive fetches.
	Interval time.Duration
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultPollTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	return o
}

// Poll fetches h's log output incrementally until the backend reports
// the end of output, the timeout budget elapses, or ctx is canceled.
// One fetch is outstanding at a time.
//
// The line cursor starts at 0 and is corrected upward only by observed
// lines: after each batch it sits at the highest seen lineNumber plus
// one, so 0- and 1-based backends are handled alike and redelivered
// lines are dropped rather than appended twice.
//
// Errors are transport-shaped only (*TransportError, ctx.Err, token
// failures). A timeout returns a nil error and a PollResult with
// Terminal=false, a timeout message in Err, and the partial logs, which
// callers usually want for diagnostics regardless of success.
func (c *Client) Poll(ctx context.Context, h ExecutionHandle, opts PollOptions) (PollResult, error) {
	opts = opts.withDefaults()

	var res PollResult
	next := 0
	start := time.Now()
	log := c.log.With(lg.String("executionId", h.ExecutionID))

	for {
		if elapsed := time.Since(start); elapsed > opts.Timeout {
			res.Err = fmt.Sprintf("timeout after %s waiting for command to finish", opts.Timeout)
			log.Warn("polling timed out",
				lg.Duration("budget", opts.Timeout),
				lg.Int("lines", len(res.Logs)))
			return res, nil
		}

		var resp pollResponse
		body := pollRequest{
			ExecutionID:    h.ExecutionID,
			Pod:            h.Pod,
			PodNamespace:   h.PodNamespace,
			NextLineNumber: next,
		}
		if err := c.post(ctx, "pollAirflowCommand", body, &resp); err != nil {
			return res, err
		}

		for _, line := range resp.Output {
			if line.LineNumber < next {
				// redelivered on a backend retry; the cursor never rewinds
				continue
			}
			res.Logs = append(res.Logs, line.Content)
			next = line.LineNumber + 1
		}
		log.Debug("poll batch",
			lg.Int("batch", len(resp.Output)),
			lg.Int("nextLine", next),
			lg.Bool("outputEnd", resp.OutputEnd))

		if resp.OutputEnd {
			res.Terminal = true
			if resp.ExitInfo != nil {
				res.ExitCode = resp.ExitInfo.ExitCode
				res.Err = resp.ExitInfo.Error
			}
			return res, nil
		}

		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
}

// Run submits cmd and polls it to completion in one step.
func (c *Client) Run(ctx context.Context, cmd Command, opts PollOptions) (PollResult, error) {
	h, err := c.Execute(ctx, cmd)
	if err != nil {
		return PollResult{}, err
	}
	return c.Poll(ctx, h, opts)
}
