package model

import "time"

type ReportEntry struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// WindowReport is the tally of one closed window
type WindowReport struct {
	WindowID   uint64               `json:"window_id"`
	StartedAt  time.Time            `json:"started_at"`
	ClosedAt   time.Time            `json:"closed_at"`
	Entries    []ReportEntry        `json:"entries"`
	Outcomes   []EnforcementOutcome `json:"outcomes,omitempty"`
	Records    int                  `json:"records"`
	Dropped    int                  `json:"dropped"`
	Detections int                  `json:"detections"`
}

// Counts returns the entries as a map, for order-insensitive comparison
func (r WindowReport) Counts() map[string]int {
	out := make(map[string]int, len(r.Entries))
	for _, e := range r.Entries {
		out[e.Source] = e.Count
	}
	return out
}
