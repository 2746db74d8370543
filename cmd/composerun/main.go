// Command composerun drives Airflow CLI commands in a Cloud Composer
// environment: trigger a DAG run, resolve run states, list runs, or
// probe the environment. Results are printed as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andrej220/composerun/internal/emit"
	"github.com/andrej220/composerun/internal/lg"
	"github.com/andrej220/composerun/pkg/auth"
	"github.com/andrej220/composerun/pkg/composer"
	"github.com/andrej220/composerun/pkg/httpx"
	"github.com/andrej220/composerun/pkg/runlog"
)

const fanOutLimit = 4

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	sub, args := os.Args[1], os.Args[2:]
	switch sub {
	case "trigger":
		err = cmdTrigger(args)
	case "state":
		err = cmdState(args)
	case "run":
		err = cmdRun(args)
	case "list-runs":
		err = cmdListRuns(args)
	case "latest":
		err = cmdLatest(args)
	case "check":
		err = cmdCheck(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s <command> [flags]

commands:
  trigger    trigger a DAG run and wait for the trigger command to finish
  state      resolve run state by logical date, one or more DAG ids
  run        resolve run state by run id
  list-runs  list all runs of a DAG
  latest     most recent run per DAG, one or more DAG ids
  check      probe the environment and credentials
`, serviceName)
}

// commonOpts are the flags every subcommand shares.
type commonOpts struct {
	fs     *flag.FlagSet
	config *string
	token  *string
	debug  *bool
	format *string
	out    *string
	retry  *bool
}

func newCommonOpts(name string) *commonOpts {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &commonOpts{
		fs:     fs,
		config: fs.String("config", defaultConfigFile, "path to the environment config file"),
		token:  fs.String("token", "", "bearer token (default $"+tokenEnvVar+")"),
		debug:  fs.Bool("debug", false, "enable debug logging"),
		format: fs.String("log-format", "console", "json or console"),
		out:    fs.String("o", "", "write the JSON result to a file instead of stdout"),
		retry:  fs.Bool("retry", false, "retry transient control-plane failures"),
	}
}

func (o *commonOpts) setup() (*composer.Client, *Config, lg.Logger, error) {
	cfg, err := LoadConfig(*o.config)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := lg.New(&lg.Config{ServiceName: serviceName, Debug: *o.debug, Format: *o.format})

	token := *o.token
	if token == "" {
		token = os.Getenv(tokenEnvVar)
	}

	var doer composer.Doer = &http.Client{Timeout: 60 * time.Second}
	if *o.retry || cfg.Retry {
		doer = httpx.NewResilientDoer(doer, nil)
	}

	client := composer.NewClient(cfg.Env(), auth.Static(token),
		composer.WithLogger(logger),
		composer.WithHTTPClient(doer))
	return client, cfg, logger, nil
}

func (o *commonOpts) emit(data any) error {
	return emit.JSON(data, *o.out, os.Stdout)
}

func cmdTrigger(args []string) error {
	opts := newCommonOpts("trigger")
	dagID := opts.fs.String("d", "", "DAG id (required)")
	runID := opts.fs.String("run-id", "", "run id (default generated manual__<uuid>)")
	conf := opts.fs.String("conf", "", "run conf as a JSON object")
	noWait := opts.fs.Bool("nowait", false, "return right after submission")
	opts.fs.Parse(args)
	if *dagID == "" {
		return fmt.Errorf("trigger: -d is required")
	}

	client, cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	trig := composer.TriggerOptions{RunID: *runID, NoWait: *noWait, Poll: cfg.PollOptions()}
	if *conf != "" {
		if err := json.Unmarshal([]byte(*conf), &trig.Conf); err != nil {
			return fmt.Errorf("trigger: parse -conf: %w", err)
		}
	}

	res, err := client.TriggerDAGRun(lg.Attach(context.Background(), logger), *dagID, trig)
	if err != nil {
		return err
	}
	return opts.emit(map[string]any{
		"dag_id":       *dagID,
		"run_id":       res.RunID,
		"execution_id": res.Handle.ExecutionID,
		"polled":       res.Polled,
		"terminal":     res.Result.Terminal,
		"exit_code":    res.Result.ExitCode,
		"error":        res.Result.Err,
		"logs":         res.Result.Logs,
	})
}

func cmdState(args []string) error {
	opts := newCommonOpts("state")
	date := opts.fs.String("date", "", "logical date, ISO-8601 (required)")
	opts.fs.Parse(args)
	dags := opts.fs.Args()
	if *date == "" || len(dags) == 0 {
		return fmt.Errorf("state: -date and at least one DAG id are required")
	}

	client, cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	results, err := fanOut(context.Background(), dags, func(ctx context.Context, dagID string) (any, error) {
		return client.RunStateByLogicalDate(ctx, dagID, *date, cfg.PollOptions())
	})
	if err != nil {
		return err
	}
	return opts.emit(results)
}

func cmdRun(args []string) error {
	opts := newCommonOpts("run")
	dagID := opts.fs.String("d", "", "DAG id (required)")
	runID := opts.fs.String("run-id", "", "run id (required)")
	opts.fs.Parse(args)
	if *dagID == "" || *runID == "" {
		return fmt.Errorf("run: -d and -run-id are required")
	}

	client, cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	status, err := client.RunStateByRunID(context.Background(), *dagID, *runID, cfg.PollOptions())
	if err != nil {
		return err
	}
	return opts.emit(status)
}

func cmdListRuns(args []string) error {
	opts := newCommonOpts("list-runs")
	dagID := opts.fs.String("d", "", "DAG id (required)")
	opts.fs.Parse(args)
	if *dagID == "" {
		return fmt.Errorf("list-runs: -d is required")
	}

	client, cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	runs, err := client.ListDAGRuns(context.Background(), *dagID, cfg.PollOptions())
	if err != nil {
		return err
	}
	return opts.emit(runs)
}

func cmdLatest(args []string) error {
	opts := newCommonOpts("latest")
	opts.fs.Parse(args)
	dags := opts.fs.Args()
	if len(dags) == 0 {
		return fmt.Errorf("latest: at least one DAG id is required")
	}

	client, cfg, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	results, err := fanOut(context.Background(), dags, func(ctx context.Context, dagID string) (any, error) {
		return client.LatestDAGRun(ctx, dagID, cfg.PollOptions())
	})
	if err != nil {
		return err
	}
	return opts.emit(results)
}

func cmdCheck(args []string) error {
	opts := newCommonOpts("check")
	opts.fs.Parse(args)

	client, _, logger, err := opts.setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	env, err := client.GetEnvironment(context.Background())
	if err != nil {
		return err
	}
	return opts.emit(env)
}

// fanOut resolves one value per DAG id, each on its own polling session
// so cursors and buffers stay session-local. Per-DAG failures land in
// that DAG's result entry instead of aborting the others; only context
// cancellation stops the group.
func fanOut(ctx context.Context, dags []string, fn func(context.Context, string) (any, error)) ([]map[string]any, error) {
	results := make([]map[string]any, len(dags))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)

	for i, dagID := range dags {
		i, dagID := i, dagID
		g.Go(func() error {
			entry := map[string]any{"dag_id": dagID}
			value, err := fn(ctx, dagID)
			switch {
			case err == nil:
				entry["result"] = value
			case errors.Is(err, runlog.ErrNotFound):
				entry["error"] = "no matching run"
			default:
				entry["error"] = err.Error()
			}
			results[i] = entry
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
