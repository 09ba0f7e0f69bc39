package builtin

import (
	"context"
	"testing"

	"conn-guard/internal/model"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuspiciousPortRule(t *testing.T) {
	rule := NewSuspiciousPortRule(true, "HIGH", model.PortRange(1, 1023, 22, 80, 443), logrus.New())
	ctx := context.Background()

	assert.Equal(t, "suspicious_port", rule.Name())
	assert.True(t, rule.IsEnabled())

	for _, port := range []int{22, 80, 443, 1024, 8080, 0} {
		assert.Nil(t, rule.Evaluate(ctx, &model.ConnectionRecord{Source: "10.0.0.2", Port: port}, 1), "port %d", port)
	}

	// Fires on every matching record, whatever the count
	for count := 1; count <= 3; count++ {
		d := rule.Evaluate(ctx, &model.ConnectionRecord{Source: "10.0.0.2", Port: 23}, count)
		require.NotNil(t, d)
		assert.Equal(t, model.DetectionKind_PORT_ANOMALY, d.Kind)
		assert.Equal(t, 23, d.Port)
		assert.Equal(t, "HIGH", d.Severity)
		assert.Equal(t, "suspicious_port", d.Rule)
	}
}

func TestSuspiciousPortRuleEmptySet(t *testing.T) {
	rule := NewSuspiciousPortRule(true, "HIGH", nil, logrus.New())
	assert.Nil(t, rule.Evaluate(context.Background(), &model.ConnectionRecord{Source: "a", Port: 23}, 1))
}

func TestConnectionRateRule(t *testing.T) {
	rule := NewConnectionRateRule(true, "CRITICAL", 2, logrus.New())
	ctx := context.Background()
	record := &model.ConnectionRecord{Source: "10.0.0.1", Port: 8080}

	assert.Equal(t, "connection_rate", rule.Name())
	assert.Equal(t, 2, rule.MaxConnections())

	assert.Nil(t, rule.Evaluate(ctx, record, 1))
	assert.Nil(t, rule.Evaluate(ctx, record, 2))

	for count := 3; count <= 5; count++ {
		d := rule.Evaluate(ctx, record, count)
		require.NotNil(t, d, "count %d", count)
		assert.Equal(t, model.DetectionKind_RATE_ANOMALY, d.Kind)
		assert.Equal(t, count, d.Count)
		assert.Equal(t, "10.0.0.1", d.Source)
	}
}

func TestConnectionRateRuleDisabled(t *testing.T) {
	rule := NewConnectionRateRule(false, "CRITICAL", 2, logrus.New())
	assert.False(t, rule.IsEnabled())
	assert.Nil(t, rule.Evaluate(context.Background(), &model.ConnectionRecord{Source: "a", Port: 1}, 10))
}
