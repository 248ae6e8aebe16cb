// Package audit is an append-only trail of notable domain events
// (submissions, violations, certificate issuance, access grants).
package audit

import (
	"context"
	"database/sql"
	"time"
)

const (
	TypeAttemptSubmitted  = "AttemptSubmitted"
	TypeViolationRecorded = "ViolationRecorded"
	TypeCertificateIssued = "CertificateIssued"
	TypeAccessGranted     = "AccessGranted"
)

type Event struct {
	Offset    int64
	Type      string
	Key       string // natural key: attempt/access id
	Data      string // JSON payload
	CreatedAt int64
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	return r.AppendTx(ctx, r.db, e)
}

// AppendTx writes the event through the caller's transaction so it
// commits or rolls back with the mutation it describes.
func (r *EventRepo) AppendTx(ctx context.Context, q execer, e Event) error {
	data := e.Data
	if data == "" {
		data = "{}"
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO event_log (typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4)`,
		e.Type, e.Key, data, time.Now().Unix())
	return err
}
