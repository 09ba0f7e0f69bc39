package window

import "conn-guard/internal/model"

// Report converts an accumulator into its tally. Entries follow first-seen
// order, so the result is stable for a given accumulator. Report has no side
// effects.
func Report(acc *Accumulator) []model.ReportEntry {
	entries := make([]model.ReportEntry, 0, len(acc.order))
	for _, source := range acc.order {
		entries = append(entries, model.ReportEntry{
			Source: source,
			Count:  acc.counts[source],
		})
	}
	return entries
}
