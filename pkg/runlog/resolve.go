package runlog

import "sort"

// FindByRunID returns the first record whose run_id equals runID.
// Matching is case-sensitive; run ids are expected unique, duplicates
// are not rejected. Returns ErrNotFound when nothing matches.
func FindByRunID(records []RunRecord, runID string) (RunRecord, error) {
	for _, r := range records {
		if r.RunID == runID {
			return r, nil
		}
	}
	return RunRecord{}, ErrNotFound
}

// MostRecent returns the record with the greatest recency key. The sort
// is stable, so records sharing a key keep their original order and the
// earliest of a tie wins. Returns ErrNotFound for an empty collection.
func MostRecent(records []RunRecord) (RunRecord, error) {
	if len(records) == 0 {
		return RunRecord{}, ErrNotFound
	}
	sorted := make([]RunRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RecencyKey() > sorted[j].RecencyKey()
	})
	return sorted[0], nil
}
