package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"conn-guard/internal/model"

	prommodel "github.com/prometheus/common/model"
	"github.com/sirupsen/logrus"
)

// AlertmanagerNotifier posts alerts to the Alertmanager v2 API
type AlertmanagerNotifier struct {
	url          string
	resolveAfter time.Duration
	client       *http.Client
	logger       *logrus.Logger
}

func NewAlertmanagerNotifier(url string, resolveAfter time.Duration, logger *logrus.Logger) *AlertmanagerNotifier {
	if resolveAfter <= 0 {
		resolveAfter = 5 * time.Minute
	}
	return &AlertmanagerNotifier{
		url:          strings.TrimRight(url, "/"),
		resolveAfter: resolveAfter,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (an *AlertmanagerNotifier) Name() string {
	return "alertmanager"
}

func (an *AlertmanagerNotifier) SendAlert(alert model.Alert) error {
	payload, err := json.Marshal([]prommodel.Alert{an.toPrometheusAlert(alert)})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, an.url+"/api/v2/alerts", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := an.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("alertmanager returned status %d", resp.StatusCode)
	}
	return nil
}

func (an *AlertmanagerNotifier) toPrometheusAlert(alert model.Alert) prommodel.Alert {
	labels := prommodel.LabelSet{
		prommodel.AlertNameLabel: prommodel.LabelValue(alert.Type),
		"severity":               prommodel.LabelValue(strings.ToLower(alert.Severity)),
		"source_ip":              prommodel.LabelValue(alert.Source),
	}
	if alert.Port != nil {
		labels["port"] = prommodel.LabelValue(strconv.Itoa(*alert.Port))
	}

	annotations := prommodel.LabelSet{
		"description": prommodel.LabelValue(alert.Message),
		"window_id":   prommodel.LabelValue(strconv.FormatUint(alert.WindowID, 10)),
	}
	if alert.Count > 0 {
		annotations["count"] = prommodel.LabelValue(strconv.Itoa(alert.Count))
	}

	return prommodel.Alert{
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    alert.Timestamp,
		EndsAt:      alert.Timestamp.Add(an.resolveAfter),
	}
}
