package composer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andrej220/composerun/pkg/auth"
)

// fakeBackend scripts the control plane for one test: a fixed execute
// response and an ordered sequence of poll responses, the last of which
// repeats if the poller keeps asking.
type fakeBackend struct {
	t *testing.T

	execStatus int // 0 means 200
	execResp   executeResponse

	pollStatus []int // parallel to pollResps, 0 means 200
	pollResps  []pollResponse

	mu       sync.Mutex
	execCmds []Command
	cursors  []int
	auths    []string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auths = append(f.auths, r.Header.Get("Authorization"))

	switch {
	case strings.HasSuffix(r.URL.Path, ":executeAirflowCommand"):
		var cmd Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			f.t.Errorf("execute body: %v", err)
		}
		f.execCmds = append(f.execCmds, cmd)
		if f.execStatus >= 400 {
			http.Error(w, `{"error":{"message":"permission denied"}}`, f.execStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(f.execResp)

	case strings.HasSuffix(r.URL.Path, ":pollAirflowCommand"):
		var req pollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("poll body: %v", err)
		}
		f.cursors = append(f.cursors, req.NextLineNumber)
		i := len(f.cursors) - 1
		if i < len(f.pollStatus) && f.pollStatus[i] >= 400 {
			http.Error(w, "backend unavailable", f.pollStatus[i])
			return
		}
		if i >= len(f.pollResps) {
			i = len(f.pollResps) - 1
		}
		_ = json.NewEncoder(w).Encode(f.pollResps[i])

	default:
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":  strings.TrimPrefix(r.URL.Path, "/"),
			"state": "RUNNING",
		})
	}
}

func newTestClient(t *testing.T, f *fakeBackend) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	env := Environment{Project: "proj", Location: "us-central1", Name: "env1"}
	return NewClient(env, auth.Static("test-token"), WithBaseURL(srv.URL))
}

func testHandle() ExecutionHandle {
	return ExecutionHandle{ExecutionID: "exec-1", Pod: "worker-0", PodNamespace: "composer"}
}

func okExec() executeResponse {
	return executeResponse{ExecutionID: "exec-1", Pod: "worker-0", PodNamespace: "composer"}
}

func lines(first int, contents ...string) []LogLine {
	out := make([]LogLine, len(contents))
	for i, c := range contents {
		out[i] = LogLine{LineNumber: first + i, Content: c}
	}
	return out
}

func intp(n int) *int { return &n }

func fastPoll() PollOptions {
	return PollOptions{Timeout: 2 * time.Second, Interval: time.Millisecond}
}
