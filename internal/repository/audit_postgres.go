package repository

import (
	"context"
	"fmt"

	"project_waflow/internal/entities"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAuditLog stores the send log in the message_log table, trimmed to the same cap as the file log
type PostgresAuditLog struct {
	db    *pgxpool.Pool
	limit int
}

func NewPostgresAuditLog(db *pgxpool.Pool) *PostgresAuditLog {
	return &PostgresAuditLog{db: db, limit: entities.MaxAuditEntries}
}

func (r *PostgresAuditLog) Append(ctx context.Context, entry entities.AuditEntry) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		// serializes concurrent append-and-trim cycles
		if _, err := tx.Exec(ctx, "LOCK TABLE message_log IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			return fmt.Errorf("lock message_log: %w", err)
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO message_log (ts, recipient, lead_name, csm_name, brand, status, message_id, error, text_preview)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, entry.Timestamp, entry.To, entry.LeadName, entry.CSMName, entry.Brand,
			entry.Status, entry.MessageID, entry.Error, entry.TextPreview)
		if err != nil {
			return fmt.Errorf("insert message_log: %w", err)
		}
		_, err = tx.Exec(ctx, `
			DELETE FROM message_log
			WHERE id NOT IN (SELECT id FROM message_log ORDER BY id DESC LIMIT $1)
		`, r.limit)
		if err != nil {
			return fmt.Errorf("trim message_log: %w", err)
		}
		return nil
	})
}

// Tail returns the most recent n entries in chronological order
func (r *PostgresAuditLog) Tail(ctx context.Context, n int) ([]entities.AuditEntry, error) {
	if n <= 0 {
		return []entities.AuditEntry{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT ts, recipient, COALESCE(lead_name, ''), COALESCE(csm_name, ''), COALESCE(brand, ''),
		       status, COALESCE(message_id, ''), COALESCE(error, ''), COALESCE(text_preview, '')
		FROM (SELECT * FROM message_log ORDER BY id DESC LIMIT $1) recent
		ORDER BY id ASC
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []entities.AuditEntry{}
	for rows.Next() {
		var e entities.AuditEntry
		if err := rows.Scan(&e.Timestamp, &e.To, &e.LeadName, &e.CSMName, &e.Brand,
			&e.Status, &e.MessageID, &e.Error, &e.TextPreview); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
