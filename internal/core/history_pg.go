package core

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// PgHistory stores conversion history in Postgres.
type PgHistory struct {
	db DBTX
}

// NewPgHistory wraps a pool or transaction.
func NewPgHistory(db DBTX) *PgHistory {
	return &PgHistory{db: db}
}

const historySchema = `
CREATE TABLE IF NOT EXISTS conversion_history (
	id           UUID PRIMARY KEY,
	file_name    TEXT NOT NULL,
	status       TEXT NOT NULL,
	error_code   TEXT,
	error_detail TEXT,
	total_rows   INTEGER NOT NULL DEFAULT 0,
	step_rows    INTEGER NOT NULL DEFAULT 0,
	dropped_rows INTEGER NOT NULL DEFAULT 0,
	encoding     TEXT,
	checksum     TEXT,
	size_bytes   BIGINT NOT NULL DEFAULT 0,
	ip_address   INET,
	user_agent   TEXT,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS conversion_history_created_at_idx
	ON conversion_history (created_at DESC);
`

// EnsureSchema creates the history table if it does not exist.
func (h *PgHistory) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, historySchema); err != nil {
		return fmt.Errorf("create conversion_history: %w", err)
	}
	return nil
}

// Record inserts one entry.
func (h *PgHistory) Record(ctx context.Context, e HistoryEntry) error {
	_, err := h.db.Exec(ctx, `
		INSERT INTO conversion_history (
			id, file_name, status, error_code, error_detail,
			total_rows, step_rows, dropped_rows, encoding, checksum,
			size_bytes, ip_address, user_agent, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		toPgUUID(e.ID), e.FileName, string(e.Status), toPgText(e.ErrorCode), toPgText(e.ErrorDetail),
		e.TotalRows, e.StepRows, e.DroppedRows, toPgText(e.Encoding), toPgText(e.Checksum),
		e.SizeBytes, parseIP(e.IPAddress), toPgText(e.UserAgent), e.DurationMS,
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: !e.CreatedAt.IsZero()},
	)
	if err != nil {
		return fmt.Errorf("insert conversion history: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (h *PgHistory) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := h.db.Query(ctx, `
		SELECT id, file_name, status, error_code, error_detail,
		       total_rows, step_rows, dropped_rows, encoding, checksum,
		       size_bytes, ip_address, user_agent, duration_ms, created_at
		FROM conversion_history
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversion history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanHistoryRow)
	if err != nil {
		return nil, fmt.Errorf("scan conversion history: %w", err)
	}
	return entries, nil
}

// PurgeOlderThan deletes entries created before cutoff.
func (h *PgHistory) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := h.db.Exec(ctx, `DELETE FROM conversion_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge conversion history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanHistoryRow(row pgx.CollectableRow) (HistoryEntry, error) {
	var (
		id          pgtype.UUID
		status      string
		errorCode   pgtype.Text
		errorDetail pgtype.Text
		encoding    pgtype.Text
		checksum    pgtype.Text
		ipAddress   *netip.Addr
		userAgent   pgtype.Text
		createdAt   pgtype.Timestamptz
		e           HistoryEntry
	)

	err := row.Scan(
		&id, &e.FileName, &status, &errorCode, &errorDetail,
		&e.TotalRows, &e.StepRows, &e.DroppedRows, &encoding, &checksum,
		&e.SizeBytes, &ipAddress, &userAgent, &e.DurationMS, &createdAt,
	)
	if err != nil {
		return HistoryEntry{}, err
	}

	e.ID = pgUUIDToString(id)
	e.Status = ConversionStatus(status)
	e.ErrorCode = errorCode.String
	e.ErrorDetail = errorDetail.String
	e.Encoding = encoding.String
	e.Checksum = checksum.String
	e.UserAgent = userAgent.String
	e.CreatedAt = createdAt.Time
	if ipAddress != nil {
		e.IPAddress = ipAddress.String()
	}
	return e, nil
}

func toPgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func toPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func pgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// parseIP strips a port and parses the address. Unparseable input is stored as NULL.
func parseIP(s string) *netip.Addr {
	if s == "" {
		return nil
	}
	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	return &addr
}
