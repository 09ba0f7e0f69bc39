package model

import "time"

type Rule struct {
	Name        string                 `yaml:"name" json:"name"`
	Enabled     bool                   `yaml:"enabled" json:"enabled"`
	Severity    string                 `yaml:"severity" json:"severity"`
	Description string                 `yaml:"description" json:"description"`
	Thresholds  map[string]interface{} `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
}

// Threshold reads a numeric threshold, accepting both int and float YAML values
func (r Rule) Threshold(key string) (float64, bool) {
	switch v := r.Thresholds[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// Alert is the payload handed to notifiers
type Alert struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Port      *int      `json:"port,omitempty"`
	Count     int       `json:"count,omitempty"`
	WindowID  uint64    `json:"window_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
