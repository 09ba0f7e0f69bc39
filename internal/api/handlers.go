package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"conn-guard/internal/model"
	"conn-guard/internal/report"
	"conn-guard/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// EnforcementHistory is the durable enforcement audit, usually the ledger
type EnforcementHistory interface {
	Enforcements(limit int) ([]report.LedgerEntry, error)
	Report(windowID uint64) (*model.WindowReport, error)
}

type Handlers struct {
	store    *storage.Storage
	history  EnforcementHistory
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

func NewHandlers(store *storage.Storage, history EnforcementHistory, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:   store,
		history: history,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				logger.Debugf("WebSocket origin check: %s", r.Header.Get("Origin"))
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Alerts handlers
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 1000)

	filter := storage.AlertFilter{
		Severity: r.URL.Query().Get("severity"),
		Type:     r.URL.Query().Get("type"),
		Source:   r.URL.Query().Get("source"),
	}
	search := r.URL.Query().Get("search")

	alerts := h.store.GetAlerts(limit, filter, search)

	response := map[string]interface{}{
		"items": alerts,
		"total": len(alerts),
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	alert := h.store.GetAlertByID(id)
	if alert == nil {
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sub := &storage.AlertSubscriber{
		ID:      generateID(),
		Channel: make(chan storage.Alert, 100),
		Filter: storage.AlertFilter{
			Severity: r.URL.Query().Get("severity"),
			Type:     r.URL.Query().Get("type"),
			Source:   r.URL.Query().Get("source"),
		},
		LastSeen: time.Now(),
	}

	h.store.SubscribeAlerts(sub)
	defer h.store.UnsubscribeAlerts(sub)

	done := make(chan struct{})
	once := &sync.Once{}
	closeDone := func() {
		once.Do(func() {
			close(done)
		})
	}

	// Reader detects the client going away
	go func() {
		defer closeDone()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case alert, ok := <-sub.Channel:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(alert); err != nil {
				h.logger.Debugf("WebSocket write error: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// Report handlers
func (h *Handlers) GetReports(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 10, 100)
	reports := h.store.GetReports(limit)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": reports,
		"total": len(reports),
	})
}

func (h *Handlers) GetLatestReport(w http.ResponseWriter, r *http.Request) {
	latest := h.store.LatestReport()
	if latest == nil {
		writeError(w, http.StatusNotFound, "No window has closed yet")
		return
	}

	writeJSON(w, http.StatusOK, latest)
}

func (h *Handlers) GetReport(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid window id")
		return
	}

	if rep := h.store.GetReport(id); rep != nil {
		writeJSON(w, http.StatusOK, rep)
		return
	}

	// Older windows may only be kept in the ledger
	if h.history != nil {
		rep, err := h.history.Report(id)
		if err != nil {
			h.logger.Errorf("Failed to read report %d from ledger: %v", id, err)
			writeError(w, http.StatusInternalServerError, "Failed to read report")
			return
		}
		if rep != nil {
			writeJSON(w, http.StatusOK, rep)
			return
		}
	}

	writeError(w, http.StatusNotFound, "Report not found")
}

// Enforcement handlers
func (h *Handlers) GetEnforcements(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 100, 1000)

	if h.history == nil {
		blocks := h.store.Blocks()
		if len(blocks) > limit {
			blocks = blocks[:limit]
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"items": blocks,
			"total": len(blocks),
		})
		return
	}

	entries, err := h.history.Enforcements(limit)
	if err != nil {
		h.logger.Errorf("Failed to read enforcement ledger: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read enforcement history")
		return
	}

	items := make([]storage.BlockEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, storage.BlockEntry{
			WindowID: e.WindowID,
			ClosedAt: e.ClosedAt,
			Source:   e.Outcome.Source,
			Status:   e.Outcome.Status.String(),
			Reason:   e.Outcome.Reason,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

// Rules handlers
func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.GetRules())
}

// Helper functions
func queryLimit(r *http.Request, def, max int) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

func generateID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
