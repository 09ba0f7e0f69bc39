package storage

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"conn-guard/internal/model"

	"github.com/sirupsen/logrus"
)

// Storage keeps recent alerts and window reports in memory for the API.
// It is fed as a notifier and as a report sink.
type Storage struct {
	mu          sync.RWMutex
	alerts      []Alert
	reports     []model.WindowReport
	rules       []model.Rule
	maxAlerts   int
	maxReports  int
	nextID      atomic.Uint64
	logger      *logrus.Logger
	alertSubs   map[*AlertSubscriber]bool
	alertSubsMu sync.RWMutex
}

type Alert struct {
	ID string `json:"id"`
	model.Alert
}

type AlertSubscriber struct {
	ID       string
	Channel  chan Alert
	Filter   AlertFilter
	LastSeen time.Time
}

type AlertFilter struct {
	Severity string
	Type     string
	Source   string
}

func (f AlertFilter) matches(alert Alert) bool {
	if f.Severity != "" && alert.Severity != f.Severity {
		return false
	}
	if f.Type != "" && alert.Type != f.Type {
		return false
	}
	if f.Source != "" && alert.Source != f.Source {
		return false
	}
	return true
}

func NewStorage(maxAlerts, maxReports int, logger *logrus.Logger) *Storage {
	if maxAlerts <= 0 {
		maxAlerts = 10000
	}
	if maxReports <= 0 {
		maxReports = 100
	}
	return &Storage{
		alerts:     make([]Alert, 0),
		reports:    make([]model.WindowReport, 0),
		rules:      make([]model.Rule, 0),
		maxAlerts:  maxAlerts,
		maxReports: maxReports,
		logger:     logger,
		alertSubs:  make(map[*AlertSubscriber]bool),
	}
}

func (s *Storage) Name() string {
	return "storage"
}

// SendAlert implements the alert notifier interface
func (s *Storage) SendAlert(alert model.Alert) error {
	s.AddAlert(alert)
	return nil
}

// WriteReport implements the report sink interface
func (s *Storage) WriteReport(ctx context.Context, report *model.WindowReport) error {
	s.AddReport(*report)
	return nil
}

// Alert methods
func (s *Storage) AddAlert(a model.Alert) Alert {
	alert := Alert{
		ID:    strconv.FormatUint(s.nextID.Add(1), 10),
		Alert: a,
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > s.maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.maxAlerts:]
	}
	s.mu.Unlock()

	s.notifySubscribers(alert)
	return alert
}

// GetAlerts returns the latest alerts first
func (s *Storage) GetAlerts(limit int, filter AlertFilter, search string) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Alert, 0)
	for i := len(s.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		alert := s.alerts[i]
		if !filter.matches(alert) {
			continue
		}
		if search != "" && !strings.Contains(alert.Message, search) {
			continue
		}
		result = append(result, alert)
	}
	return result
}

func (s *Storage) GetAlertByID(id string) *Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.alerts {
		if s.alerts[i].ID == id {
			alert := s.alerts[i]
			return &alert
		}
	}
	return nil
}

// Report methods
func (s *Storage) AddReport(report model.WindowReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports = append(s.reports, report)
	if len(s.reports) > s.maxReports {
		s.reports = s.reports[len(s.reports)-s.maxReports:]
	}
}

func (s *Storage) LatestReport() *model.WindowReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.reports) == 0 {
		return nil
	}
	report := s.reports[len(s.reports)-1]
	return &report
}

func (s *Storage) GetReport(windowID uint64) *model.WindowReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.reports {
		if s.reports[i].WindowID == windowID {
			report := s.reports[i]
			return &report
		}
	}
	return nil
}

// GetReports returns the latest reports first
func (s *Storage) GetReports(limit int) []model.WindowReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.WindowReport, 0)
	for i := len(s.reports) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.reports[i])
	}
	return result
}

// Blocks returns the enforcement attempts of the retained reports, latest
// window first
func (s *Storage) Blocks() []BlockEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]BlockEntry, 0)
	for i := len(s.reports) - 1; i >= 0; i-- {
		for _, o := range s.reports[i].Outcomes {
			result = append(result, BlockEntry{
				WindowID: s.reports[i].WindowID,
				ClosedAt: s.reports[i].ClosedAt,
				Source:   o.Source,
				Status:   o.Status.String(),
				Reason:   o.Reason,
			})
		}
	}
	return result
}

type BlockEntry struct {
	WindowID uint64    `json:"window_id"`
	ClosedAt time.Time `json:"closed_at"`
	Source   string    `json:"source"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
}

// Rule methods
func (s *Storage) SetRules(rules []model.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = rules
}

func (s *Storage) GetRules() []model.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Rule, len(s.rules))
	copy(result, s.rules)
	return result
}

// Subscriber methods
func (s *Storage) SubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	s.alertSubs[sub] = true
}

func (s *Storage) UnsubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	if _, ok := s.alertSubs[sub]; !ok {
		return
	}
	delete(s.alertSubs, sub)
	close(sub.Channel)
}

func (s *Storage) notifySubscribers(alert Alert) {
	s.alertSubsMu.RLock()
	defer s.alertSubsMu.RUnlock()

	for sub := range s.alertSubs {
		if !sub.Filter.matches(alert) {
			continue
		}

		select {
		case sub.Channel <- alert:
			sub.LastSeen = time.Now()
		default:
			// Channel full, skip
		}
	}
}
