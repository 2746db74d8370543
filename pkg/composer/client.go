package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andrej220/composerun/internal/lg"
	"github.com/andrej220/composerun/pkg/auth"
)

// DefaultBaseURL is the production Composer API endpoint.
const DefaultBaseURL = "https://composer.googleapis.com/v1"

// maxErrBody bounds how much of an error response is carried in a
// TransportError.
const maxErrBody = 2048

// Doer issues one HTTP request. *http.Client satisfies it, as does the
// resilient wrapper in pkg/httpx.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one Composer environment. It holds no mutable state
// besides its configuration and is safe for concurrent use; each
// polling session owns its own cursor and log buffer.
type Client struct {
	env     Environment
	tokens  auth.TokenSource
	httpc   Doer
	baseURL string
	log     lg.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP doer.
func WithHTTPClient(d Doer) Option { return func(c *Client) { c.httpc = d } }

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithLogger attaches a structured logger; the default discards.
func WithLogger(l lg.Logger) Option { return func(c *Client) { c.log = l } }

func NewClient(env Environment, tokens auth.TokenSource, opts ...Option) *Client {
	c := &Client{
		env:     env,
		tokens:  tokens,
		httpc:   &http.Client{Timeout: 60 * time.Second},
		baseURL: DefaultBaseURL,
		log:     lg.Discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute submits cmd for asynchronous execution and returns the handle
// to poll it with. A complete handle does not mean the command has
// produced any output yet. An incomplete handle in the response is a
// *SubmissionError.
func (c *Client) Execute(ctx context.Context, cmd Command) (ExecutionHandle, error) {
	var resp executeResponse
	if err := c.post(ctx, "executeAirflowCommand", cmd, &resp); err != nil {
		return ExecutionHandle{}, err
	}

	var missing []string
	if resp.ExecutionID == "" {
		missing = append(missing, "executionId")
	}
	if resp.Pod == "" {
		missing = append(missing, "pod")
	}
	if resp.PodNamespace == "" {
		missing = append(missing, "podNamespace")
	}
	if len(missing) > 0 {
		return ExecutionHandle{}, &SubmissionError{Missing: missing}
	}
	if resp.Error != "" {
		c.log.Warn("execute response carried an error",
			lg.String("executionId", resp.ExecutionID),
			lg.String("error", resp.Error))
	}

	c.log.Debug("command submitted",
		lg.String("command", cmd.Command),
		lg.String("subcommand", cmd.Subcommand),
		lg.String("executionId", resp.ExecutionID))

	return ExecutionHandle{
		ExecutionID:  resp.ExecutionID,
		Pod:          resp.Pod,
		PodNamespace: resp.PodNamespace,
	}, nil
}

// GetEnvironment fetches the environment resource itself. Useful as a
// connectivity and credential probe before launching real work.
func (c *Client) GetEnvironment(ctx context.Context) (map[string]any, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, c.env.ResourceName())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("composer: build request: %w", err)
	}

	var env map[string]any
	if err := c.do(req, "get environment", &env); err != nil {
		return nil, err
	}
	return env, nil
}

func (c *Client) post(ctx context.Context, verb string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("composer: encode %s request: %w", verb, err)
	}

	url := fmt.Sprintf("%s/%s:%s", c.baseURL, c.env.ResourceName(), verb)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("composer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, verb, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	token, err := c.tokens.Token(req.Context())
	if err != nil {
		return fmt.Errorf("composer: %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("composer: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
		return &TransportError{Op: op, Status: resp.StatusCode, Body: string(bytes.TrimSpace(excerpt))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("composer: decode %s response: %w", op, err)
	}
	return nil
}
