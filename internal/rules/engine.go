package rules

import (
	"context"
	"sync"

	"conn-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// Engine runs the registered rules against each record. Rules are pure and
// order-insensitive; detections come back in registration order.
type Engine struct {
	rules  []RuleInterface
	logger *logrus.Logger
	mu     sync.RWMutex
}

func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{
		rules:  make([]RuleInterface, 0),
		logger: logger,
	}
}

func (e *Engine) RegisterRule(rule RuleInterface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, rule)
	e.logger.Infof("Registered rule: %s", rule.Name())
}

// Rules returns the registered rules
func (e *Engine) Rules() []RuleInterface {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rules := make([]RuleInterface, len(e.rules))
	copy(rules, e.rules)
	return rules
}

// Evaluate checks one record. count is the record's source count in the
// current window, already including this record.
func (e *Engine) Evaluate(ctx context.Context, record *model.ConnectionRecord, count int) []model.Detection {
	if record == nil {
		return nil
	}

	e.mu.RLock()
	rules := make([]RuleInterface, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	var detections []model.Detection

	for _, rule := range rules {
		if rule.IsEnabled() {
			if detection := rule.Evaluate(ctx, record, count); detection != nil {
				detections = append(detections, *detection)
			}
		}
	}

	return detections
}

type RuleInterface interface {
	Name() string
	IsEnabled() bool
	Evaluate(ctx context.Context, record *model.ConnectionRecord, count int) *model.Detection
}
