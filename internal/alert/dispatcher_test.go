package alert

import (
	"errors"
	"sync"
	"testing"
	"time"

	"conn-guard/internal/client"
	"conn-guard/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	name   string
	mu     sync.Mutex
	alerts []model.Alert
	err    error
	panic  bool
}

func (n *recordingNotifier) Name() string {
	return n.name
}

func (n *recordingNotifier) SendAlert(alert model.Alert) error {
	if n.panic {
		panic("boom")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return n.err
}

func (n *recordingNotifier) received() []model.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.Alert, len(n.alerts))
	copy(out, n.alerts)
	return out
}

func testAlert(source string, port int) model.Alert {
	p := port
	return model.Alert{
		Type:     model.DetectionKind_PORT_ANOMALY.String(),
		Severity: "HIGH",
		Source:   source,
		Port:     &p,
	}
}

func TestDispatcherDeliversToEveryNotifier(t *testing.T) {
	metrics := client.NewPrometheusMetrics(prometheus.NewRegistry())
	d := NewDispatcher(DispatcherConfig{}, metrics, logrus.New())

	good := &recordingNotifier{name: "good"}
	failing := &recordingNotifier{name: "failing", err: errors.New("smtp down")}
	panicking := &recordingNotifier{name: "panicking", panic: true}
	d.RegisterNotifier(failing)
	d.RegisterNotifier(panicking)
	d.RegisterNotifier(good)
	d.Start()

	for i := 0; i < 3; i++ {
		assert.True(t, d.Emit(testAlert("10.0.0.1", 23)))
	}
	d.Stop()

	assert.Len(t, good.received(), 3)
	assert.Len(t, failing.received(), 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AlertsSent.WithLabelValues("good")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AlertErrors.WithLabelValues("failing")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AlertErrors.WithLabelValues("panicking")))
}

func TestDispatcherEmitAfterStop(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{}, nil, logrus.New())
	d.Start()
	d.Stop()
	d.Stop()

	assert.False(t, d.Emit(testAlert("10.0.0.1", 23)))
}

func TestDispatcherStopWithoutStart(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{}, nil, logrus.New())
	assert.True(t, d.Emit(testAlert("10.0.0.1", 23)))
	d.Stop()
}

func TestDispatcherQueueFull(t *testing.T) {
	metrics := client.NewPrometheusMetrics(prometheus.NewRegistry())
	d := NewDispatcher(DispatcherConfig{QueueSize: 2}, metrics, logrus.New())

	assert.True(t, d.Emit(testAlert("10.0.0.1", 23)))
	assert.True(t, d.Emit(testAlert("10.0.0.1", 23)))
	assert.False(t, d.Emit(testAlert("10.0.0.1", 23)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AlertsDropped))
	d.Stop()
}

func TestDispatcherRateLimit(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MaxAlertsPerMinute: 2}, nil, logrus.New())
	defer d.Stop()

	assert.True(t, d.Emit(testAlert("10.0.0.1", 23)))
	assert.True(t, d.Emit(testAlert("10.0.0.2", 23)))
	assert.False(t, d.Emit(testAlert("10.0.0.3", 23)))
}

func TestDispatcherCooldown(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Cooldown: 50 * time.Millisecond}, nil, logrus.New())
	defer d.Stop()

	assert.True(t, d.Emit(testAlert("10.0.0.1", 23)))
	assert.False(t, d.Emit(testAlert("10.0.0.1", 23)))
	assert.True(t, d.Emit(testAlert("10.0.0.1", 25)))
	assert.True(t, d.Emit(testAlert("10.0.0.2", 23)))

	require.Eventually(t, func() bool {
		return d.Emit(testAlert("10.0.0.1", 23))
	}, time.Second, 10*time.Millisecond)
}

func TestFromDetection(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	port := FromDetection(model.Detection{
		Kind:     model.DetectionKind_PORT_ANOMALY,
		Severity: "HIGH",
		Source:   "10.0.0.3",
		Port:     23,
	}, 4, now)
	assert.Equal(t, "port_anomaly", port.Type)
	require.NotNil(t, port.Port)
	assert.Equal(t, 23, *port.Port)
	assert.Equal(t, uint64(4), port.WindowID)
	assert.Equal(t, now, port.Timestamp)
	assert.Equal(t, "Suspicious port activity from IP 10.0.0.3 on port 23", port.Message)

	rate := FromDetection(model.Detection{
		Kind:   model.DetectionKind_RATE_ANOMALY,
		Source: "10.0.0.1",
		Count:  3,
	}, 4, now)
	assert.Equal(t, "rate_anomaly", rate.Type)
	assert.Nil(t, rate.Port)
	assert.Equal(t, 3, rate.Count)
	assert.Contains(t, rate.Message, "10.0.0.1")
}
