package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckinRecord is one audited scan outcome. ProxyKeyHash replaces the
// raw proxy key so the table never holds usable credentials.
type CheckinRecord struct {
	ID           int64     `json:"id"`
	ScanID       string    `json:"scan_id"`
	Gate         string    `json:"gate"`
	EventAPIID   string    `json:"event_api_id,omitempty"`
	ProxyKeyHash string    `json:"-"`
	Status       string    `json:"status"`
	GuestName    string    `json:"guest_name,omitempty"`
	GuestEmail   string    `json:"guest_email,omitempty"`
	TicketName   string    `json:"ticket_name,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Source       string    `json:"source"`
	ScannedAt    time.Time `json:"scanned_at"`
	RecordedAt   time.Time `json:"recorded_at"`
}

type CheckinRepo interface {
	Record(ctx context.Context, rec *CheckinRecord) error
	ListRecent(ctx context.Context, limit int) ([]CheckinRecord, error)
}

type CheckinRepoImpl struct {
	pool *pgxpool.Pool
}

func NewCheckinRepo(pool *pgxpool.Pool) *CheckinRepoImpl {
	return &CheckinRepoImpl{pool: pool}
}

const checkinCols = `id, scan_id, gate, event_api_id, proxy_key_hash, status, guest_name, guest_email, ticket_name, reason, source, scanned_at, recorded_at`

func (r *CheckinRepoImpl) Record(ctx context.Context, rec *CheckinRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO gate_checkins (scan_id, gate, event_api_id, proxy_key_hash, status, guest_name, guest_email, ticket_name, reason, source, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, recorded_at`,
		rec.ScanID, rec.Gate, rec.EventAPIID, rec.ProxyKeyHash, rec.Status,
		rec.GuestName, rec.GuestEmail, rec.TicketName, rec.Reason, rec.Source, rec.ScannedAt,
	).Scan(&rec.ID, &rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to record check-in: %w", err)
	}
	return nil
}

func (r *CheckinRepoImpl) ListRecent(ctx context.Context, limit int) ([]CheckinRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+checkinCols+` FROM gate_checkins ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	defer rows.Close()

	var recs []CheckinRecord
	for rows.Next() {
		var rec CheckinRecord
		if err := rows.Scan(
			&rec.ID, &rec.ScanID, &rec.Gate, &rec.EventAPIID, &rec.ProxyKeyHash, &rec.Status,
			&rec.GuestName, &rec.GuestEmail, &rec.TicketName, &rec.Reason, &rec.Source,
			&rec.ScannedAt, &rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan check-in row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// EnsureSchema creates the audit table on first boot against a fresh
// database. The DDL is idempotent.
func (r *CheckinRepoImpl) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS gate_checkins (
			id             BIGSERIAL PRIMARY KEY,
			scan_id        TEXT NOT NULL,
			gate           TEXT NOT NULL,
			event_api_id   TEXT NOT NULL DEFAULT '',
			proxy_key_hash TEXT NOT NULL DEFAULT '',
			status         TEXT NOT NULL,
			guest_name     TEXT NOT NULL DEFAULT '',
			guest_email    TEXT NOT NULL DEFAULT '',
			ticket_name    TEXT NOT NULL DEFAULT '',
			reason         TEXT NOT NULL DEFAULT '',
			source         TEXT NOT NULL DEFAULT '',
			scanned_at     TIMESTAMPTZ NOT NULL,
			recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to ensure check-in schema: %w", err)
	}

	_, err = r.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS gate_checkins_scanned_at_idx ON gate_checkins (scanned_at DESC)`)
	if err != nil {
		return fmt.Errorf("failed to ensure check-in index: %w", err)
	}
	return nil
}
