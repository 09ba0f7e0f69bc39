package model

import (
	"fmt"
	"sort"
)

// DetectionKind identifies which rule produced a detection
type DetectionKind int32

const (
	DetectionKind_PORT_ANOMALY DetectionKind = 1
	DetectionKind_RATE_ANOMALY DetectionKind = 2
)

func (k DetectionKind) String() string {
	switch k {
	case DetectionKind_PORT_ANOMALY:
		return "port_anomaly"
	case DetectionKind_RATE_ANOMALY:
		return "rate_anomaly"
	default:
		return "unknown"
	}
}

// Detection is produced by the rule layer and consumed by the coordinator
// and the notifiers. It is never retained.
type Detection struct {
	Kind     DetectionKind `json:"kind"`
	Rule     string        `json:"rule"`
	Severity string        `json:"severity"`
	Source   string        `json:"source"`
	// Port is set for PORT_ANOMALY
	Port int `json:"port,omitempty"`
	// Count is set for RATE_ANOMALY
	Count int `json:"count,omitempty"`
}

func (d Detection) String() string {
	switch d.Kind {
	case DetectionKind_PORT_ANOMALY:
		return fmt.Sprintf("%s source=%s port=%d", d.Kind, d.Source, d.Port)
	case DetectionKind_RATE_ANOMALY:
		return fmt.Sprintf("%s source=%s count=%d", d.Kind, d.Source, d.Count)
	default:
		return fmt.Sprintf("%s source=%s", d.Kind, d.Source)
	}
}

// EnforcementStatus is the result of handling one rate detection. NOOP means
// the source already had an attempt in this window.
type EnforcementStatus int32

const (
	EnforcementStatus_NOOP         EnforcementStatus = 0
	EnforcementStatus_BLOCKED      EnforcementStatus = 1
	EnforcementStatus_BLOCK_FAILED EnforcementStatus = 2
)

func (s EnforcementStatus) String() string {
	switch s {
	case EnforcementStatus_BLOCKED:
		return "blocked"
	case EnforcementStatus_BLOCK_FAILED:
		return "block_failed"
	default:
		return "noop"
	}
}

type EnforcementOutcome struct {
	Source string            `json:"source"`
	Status EnforcementStatus `json:"status"`
	Reason string            `json:"reason,omitempty"`
}

// Attempted reports whether the backend was called for this outcome
func (o EnforcementOutcome) Attempted() bool {
	return o.Status != EnforcementStatus_NOOP
}

// BlockRecord holds the sources that already had an enforcement attempt in
// the current window. It is owned by a single window.
type BlockRecord struct {
	sources map[string]struct{}
}

func NewBlockRecord() *BlockRecord {
	return &BlockRecord{sources: make(map[string]struct{})}
}

func (b *BlockRecord) Contains(source string) bool {
	_, ok := b.sources[source]
	return ok
}

// Add returns false if the source was already present
func (b *BlockRecord) Add(source string) bool {
	if _, ok := b.sources[source]; ok {
		return false
	}
	b.sources[source] = struct{}{}
	return true
}

func (b *BlockRecord) Len() int {
	return len(b.sources)
}

// Sources returns the recorded sources sorted lexically
func (b *BlockRecord) Sources() []string {
	out := make([]string, 0, len(b.sources))
	for s := range b.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
