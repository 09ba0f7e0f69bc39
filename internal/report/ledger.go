package report

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"conn-guard/internal/model"

	bolt "go.etcd.io/bbolt"
)

var (
	reportsBucket     = []byte("reports")
	enforcementBucket = []byte("enforcement")
)

// Ledger is an append-only audit trail of window reports and enforcement
// outcomes. It only records history; detection never reads it.
type Ledger struct {
	db *bolt.DB
}

type LedgerEntry struct {
	WindowID uint64                   `json:"window_id"`
	ClosedAt time.Time                `json:"closed_at"`
	Outcome  model.EnforcementOutcome `json:"outcome"`
}

func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(reportsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(enforcementBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Ledger{db: db}, nil
}

func (l *Ledger) Name() string {
	return "ledger"
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// WriteReport stores the report under its window id and every enforcement
// attempt under a sequence number
func (l *Ledger) WriteReport(ctx context.Context, report *model.WindowReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	return l.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(reportsBucket).Put(uint64Key(report.WindowID), data); err != nil {
			return err
		}

		b := tx.Bucket(enforcementBucket)
		for _, outcome := range report.Outcomes {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			entry, err := json.Marshal(LedgerEntry{
				WindowID: report.WindowID,
				ClosedAt: report.ClosedAt,
				Outcome:  outcome,
			})
			if err != nil {
				return err
			}
			if err := b.Put(uint64Key(seq), entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// Report returns the stored report of a window
func (l *Ledger) Report(windowID uint64) (*model.WindowReport, error) {
	var report *model.WindowReport
	err := l.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(reportsBucket).Get(uint64Key(windowID))
		if data == nil {
			return nil
		}
		report = &model.WindowReport{}
		return json.Unmarshal(data, report)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read report %d: %w", windowID, err)
	}
	return report, nil
}

// LastWindowID returns the highest stored window id, 0 when empty
func (l *Ledger) LastWindowID() (uint64, error) {
	var id uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(reportsBucket).Cursor().Last()
		if k != nil {
			id = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return id, err
}

// Enforcements returns up to limit enforcement entries, newest first
func (l *Ledger) Enforcements(limit int) ([]LedgerEntry, error) {
	entries := make([]LedgerEntry, 0)
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(enforcementBucket).Cursor()
		for k, v := c.Last(); k != nil && (limit <= 0 || len(entries) < limit); k, v = c.Prev() {
			var entry LedgerEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

func uint64Key(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}
