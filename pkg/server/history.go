package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/grafana/dskit/services"
	_ "github.com/mattn/go-sqlite3"
	"github.com/runfleet/runfleet/pkg/protocol"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id   TEXT NOT NULL,
	action_type TEXT NOT NULL,
	action_data TEXT NOT NULL,
	output      TEXT NOT NULL,
	reported_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_client ON results(client_id);
`

// ResultRecord is one reported action result, as stored for audit.
type ResultRecord struct {
	ID         int64     `json:"id"`
	ClientID   string    `json:"client_id"`
	ActionType string    `json:"action_type"`
	ActionData string    `json:"action_data"`
	Output     string    `json:"output"`
	ReportedAt time.Time `json:"reported_at"`
}

// HistoryService records every reported result in sqlite. An empty path
// keeps the history in memory.
type HistoryService struct {
	logger *slog.Logger
	db     *sql.DB

	services.Service
}

func NewHistoryService(logger *slog.Logger, path string) (*HistoryService, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	h := &HistoryService{
		logger: logger,
		db:     db,
	}
	h.Service = services.NewBasicService(h.starting, h.running, h.stopping)
	return h, nil
}

func (h *HistoryService) starting(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, historySchema); err != nil {
		return fmt.Errorf("creating history schema: %w", err)
	}
	h.logger.Info("history database ready")
	return nil
}

func (h *HistoryService) running(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (h *HistoryService) stopping(_ error) error {
	return h.db.Close()
}

// Record appends one reported batch, preserving its order.
func (h *HistoryService) Record(ctx context.Context, clientID string, results []protocol.ActionResult) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, res := range results {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO results (client_id, action_type, action_data, output, reported_at) VALUES (?, ?, ?, ?, ?)`,
			clientID, res.Action.Type, res.Action.Data, res.Output, now,
		)
		if err != nil {
			return fmt.Errorf("recording result: %w", err)
		}
	}
	return tx.Commit()
}

// ByClient returns a client's recorded results, oldest first.
func (h *HistoryService) ByClient(ctx context.Context, clientID string) ([]ResultRecord, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, client_id, action_type, action_data, output, reported_at FROM results WHERE client_id = ? ORDER BY id`,
		clientID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []ResultRecord{}
	for rows.Next() {
		var rec ResultRecord
		if err := rows.Scan(&rec.ID, &rec.ClientID, &rec.ActionType, &rec.ActionData, &rec.Output, &rec.ReportedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
