package alert

import (
	"fmt"
	"sync"
	"time"

	"conn-guard/internal/client"
	"conn-guard/internal/model"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type DispatcherConfig struct {
	QueueSize int
	// MaxAlertsPerMinute caps deliveries; 0 disables the limit
	MaxAlertsPerMinute int
	// Cooldown suppresses identical alerts (type, source, port) for this
	// long; 0 disables it
	Cooldown time.Duration
}

// Dispatcher delivers alerts to the notifiers on its own goroutine. Emit
// never blocks, so delivery cannot slow down or change detection and
// enforcement; a notifier error is only logged.
type Dispatcher struct {
	notifiers []Notifier
	queue     chan model.Alert
	limiter   *rate.Limiter
	cooldown  *cache.Cache
	metrics   *client.PrometheusMetrics
	logger    *logrus.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	done    chan struct{}
}

func NewDispatcher(config DispatcherConfig, metrics *client.PrometheusMetrics, logger *logrus.Logger) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}

	d := &Dispatcher{
		notifiers: make([]Notifier, 0),
		queue:     make(chan model.Alert, config.QueueSize),
		metrics:   metrics,
		logger:    logger,
		done:      make(chan struct{}),
	}

	if config.MaxAlertsPerMinute > 0 {
		perSecond := rate.Limit(float64(config.MaxAlertsPerMinute) / 60.0)
		d.limiter = rate.NewLimiter(perSecond, config.MaxAlertsPerMinute)
	}
	if config.Cooldown > 0 {
		d.cooldown = cache.New(config.Cooldown, 2*config.Cooldown)
	}

	return d
}

func (d *Dispatcher) RegisterNotifier(notifier Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, notifier)
	d.logger.Infof("Registered notifier: %s", notifier.Name())
}

// Emit queues an alert. It returns false when the alert was dropped.
func (d *Dispatcher) Emit(alert model.Alert) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return false
	}

	if d.cooldown != nil {
		key := cooldownKey(alert)
		if _, found := d.cooldown.Get(key); found {
			d.dropped("cooldown", alert)
			return false
		}
		d.cooldown.SetDefault(key, struct{}{})
	}

	if d.limiter != nil && !d.limiter.Allow() {
		d.dropped("rate limited", alert)
		return false
	}

	select {
	case d.queue <- alert:
		return true
	default:
		d.dropped("queue full", alert)
		return false
	}
}

func (d *Dispatcher) dropped(reason string, alert model.Alert) {
	d.logger.Debugf("Dropping alert %s for %s: %s", alert.Type, alert.Source, reason)
	if d.metrics != nil {
		d.metrics.RecordAlertDropped()
	}
}

// Start runs the delivery loop until Stop
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		for alert := range d.queue {
			d.deliver(alert)
		}
	}()
}

// Stop stops accepting alerts and waits until the queued ones are delivered
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if started {
		<-d.done
	}
}

func (d *Dispatcher) deliver(alert model.Alert) {
	d.mu.RLock()
	notifiers := make([]Notifier, len(d.notifiers))
	copy(notifiers, d.notifiers)
	d.mu.RUnlock()

	for _, notifier := range notifiers {
		if err := d.send(notifier, alert); err != nil {
			d.logger.Errorf("Failed to send alert via %s: %v", notifier.Name(), err)
			if d.metrics != nil {
				d.metrics.RecordAlertError(notifier.Name())
			}
			continue
		}
		if d.metrics != nil {
			d.metrics.RecordAlertSent(notifier.Name())
		}
	}
}

func (d *Dispatcher) send(notifier Notifier, alert model.Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return notifier.SendAlert(alert)
}

func cooldownKey(alert model.Alert) string {
	if alert.Port != nil {
		return fmt.Sprintf("%s|%s|%d", alert.Type, alert.Source, *alert.Port)
	}
	return fmt.Sprintf("%s|%s", alert.Type, alert.Source)
}
