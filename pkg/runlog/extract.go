package runlog

import (
	"encoding/json"
	"strings"
)

// ExtractRecords pulls the first bracket-delimited JSON array out of a
// log blob and decodes it as []RunRecord. The CLI surrounds the payload
// with diagnostic noise, so the array is located positionally: first
// '[' to last ']'. Any miss, including a decode failure, yields nil.
func ExtractRecords(blob string) []RunRecord {
	first := strings.Index(blob, "[")
	last := strings.LastIndex(blob, "]")
	if first == -1 || last == -1 || last <= first {
		return nil
	}

	var records []RunRecord
	if err := json.Unmarshal([]byte(blob[first:last+1]), &records); err != nil {
		return nil
	}
	return records
}

// ScanState scans log lines bottom-up for a line that is exactly a
// known state token. "dags state" prints the state on the last line in
// most CLI versions, and intermediate status lines may appear earlier,
// so the most recent match wins.
func ScanState(lines []string) RunState {
	for i := len(lines) - 1; i >= 0; i-- {
		if s, ok := ParseState(lines[i]); ok {
			return s
		}
	}
	return StateUnknown
}

// ScanStateForRun is the tabular fallback for CLI versions without JSON
// output: it scans forward for a line mentioning runID and returns the
// first whitespace-delimited token on it that is a known state.
func ScanStateForRun(lines []string, runID string) RunState {
	for _, line := range lines {
		if !strings.Contains(line, runID) {
			continue
		}
		for _, tok := range strings.Fields(line) {
			if s, ok := ParseState(tok); ok {
				return s
			}
		}
	}
	return StateUnknown
}
