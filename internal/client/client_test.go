package client

import (
	"testing"
	"time"

	"conn-guard/internal/model"

	"github.com/cilium/cilium/api/v1/flow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func tcpFlow(src, dst string, port uint32, flags *flow.TCPFlags) *flow.Flow {
	return &flow.Flow{
		IP: &flow.IP{Source: src, Destination: dst},
		L4: &flow.Layer4{Protocol: &flow.Layer4_TCP{TCP: &flow.TCP{DestinationPort: port, Flags: flags}}},
	}
}

func TestConnectionLine(t *testing.T) {
	testCases := []struct {
		name     string
		flow     *flow.Flow
		expected string
		ok       bool
	}{
		{
			name:     "tcp syn",
			flow:     tcpFlow("10.0.0.1", "10.0.0.9", 23, &flow.TCPFlags{SYN: true}),
			expected: "tcp,10.0.0.1,23,10.0.0.9",
			ok:       true,
		},
		{
			name: "tcp syn-ack is a reply",
			flow: tcpFlow("10.0.0.9", "10.0.0.1", 40000, &flow.TCPFlags{SYN: true, ACK: true}),
		},
		{
			name: "established tcp",
			flow: tcpFlow("10.0.0.1", "10.0.0.9", 23, &flow.TCPFlags{ACK: true, PSH: true}),
		},
		{
			name: "tcp without flags",
			flow: tcpFlow("10.0.0.1", "10.0.0.9", 23, nil),
		},
		{
			name: "udp",
			flow: &flow.Flow{
				IP: &flow.IP{Source: "10.0.0.2", Destination: "10.0.0.53"},
				L4: &flow.Layer4{Protocol: &flow.Layer4_UDP{UDP: &flow.UDP{DestinationPort: 53}}},
			},
			expected: "udp,10.0.0.2,53,10.0.0.53",
			ok:       true,
		},
		{
			name: "no l4",
			flow: &flow.Flow{IP: &flow.IP{Source: "10.0.0.1", Destination: "10.0.0.9"}},
		},
		{
			name: "icmp",
			flow: &flow.Flow{
				IP: &flow.IP{Source: "10.0.0.1", Destination: "10.0.0.9"},
				L4: &flow.Layer4{Protocol: &flow.Layer4_ICMPv4{ICMPv4: &flow.ICMPv4{Type: 8}}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			line, ok := connectionLine(tc.flow)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.expected, line)
		})
	}
}

func TestRecordWindow(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.RecordWindow(&model.WindowReport{
		Entries: []model.ReportEntry{{Source: "10.0.0.1", Count: 3}, {Source: "10.0.0.2", Count: 1}},
		Outcomes: []model.EnforcementOutcome{
			{Source: "10.0.0.1", Status: model.EnforcementStatus_BLOCKED},
			{Source: "10.0.0.3", Status: model.EnforcementStatus_NOOP},
		},
	}, 20*time.Millisecond)
	m.RecordDetection(model.Detection{Kind: model.DetectionKind_RATE_ANOMALY})
	m.RecordEnforcement(model.EnforcementOutcome{Status: model.EnforcementStatus_BLOCK_FAILED})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WindowsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.WindowSources))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WindowBlocked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Detections.WithLabelValues("rate_anomaly")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Enforcement.WithLabelValues("block_failed")))
}
