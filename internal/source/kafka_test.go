package source

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKafkaSourceValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  KafkaConfig
		wantErr string
	}{
		{
			name:    "no brokers",
			config:  KafkaConfig{Topic: "traffic", GroupID: "g"},
			wantErr: "brokers is required",
		},
		{
			name:    "no topic",
			config:  KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"},
			wantErr: "topic is required",
		},
		{
			name:    "no group",
			config:  KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "traffic"},
			wantErr: "group_id is required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewKafkaSource(tc.config, logrus.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNewKafkaSource(t *testing.T) {
	src, err := NewKafkaSource(KafkaConfig{
		Brokers:         []string{"localhost:9092"},
		Topic:           "traffic",
		GroupID:         "conn-guard",
		AutoOffsetReset: "earliest",
	}, logrus.New())
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, "kafka:traffic", src.Name())
}
