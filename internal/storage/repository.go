package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"squadpay/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Single connection keeps the foreign_keys pragma effective and
	// avoids SQLITE_BUSY between writers sharing the file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateAggregate persists a new aggregate with its full member list.
func (r *SQLiteRepository) CreateAggregate(ctx context.Context, agg *core.Aggregate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	agg.Version = 1
	if err := qtx.InsertAggregate(ctx, AggregateRow{
		ID:         agg.ID,
		MatchRef:   agg.MatchRef,
		TotalPaise: agg.TotalPaise,
		Version:    agg.Version,
	}); err != nil {
		return fmt.Errorf("insert aggregate: %w", err)
	}
	if err := insertMembers(ctx, qtx, agg); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Aggregate created",
		"aggregate_id", agg.ID,
		"match_ref", agg.MatchRef,
		"total_paise", agg.TotalPaise,
		"members", len(agg.Members))
	return nil
}

// GetAggregate loads an aggregate and its members in insertion order.
// Returns core.ErrNotFound when the ID is unknown.
func (r *SQLiteRepository) GetAggregate(ctx context.Context, id string) (*core.Aggregate, error) {
	row, err := r.queries.GetAggregate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("get aggregate: %w", err)
	}
	return r.loadAggregate(ctx, row)
}

// ListAggregatesByMatch returns every aggregate recorded for a match.
func (r *SQLiteRepository) ListAggregatesByMatch(ctx context.Context, matchRef string) ([]*core.Aggregate, error) {
	rows, err := r.queries.ListAggregatesByMatch(ctx, matchRef)
	if err != nil {
		return nil, fmt.Errorf("list aggregates by match: %w", err)
	}
	out := make([]*core.Aggregate, 0, len(rows))
	for _, row := range rows {
		agg, err := r.loadAggregate(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, nil
}

// SaveAggregate rewrites an aggregate's state in one transaction with an
// optimistic version check: core.ErrConflict means the caller's snapshot
// went stale and the operation should be retried on fresh state.
// Payment events to append and members whose events to purge ride along
// so a mutation and its event trail commit atomically.
func (r *SQLiteRepository) SaveAggregate(ctx context.Context, agg *core.Aggregate, events []core.PaymentEvent, purgeEventsFor []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	affected, err := qtx.UpdateAggregateVersioned(ctx, agg.ID, agg.TotalPaise, agg.Version)
	if err != nil {
		return fmt.Errorf("update aggregate: %w", err)
	}
	if affected == 0 {
		if _, err := qtx.GetAggregate(ctx, agg.ID); errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		return core.ErrConflict
	}

	if err := qtx.DeleteMembersByAggregate(ctx, agg.ID); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	if err := insertMembers(ctx, qtx, agg); err != nil {
		return err
	}

	for _, memberID := range purgeEventsFor {
		if err := qtx.DeletePaymentEventsByMember(ctx, memberID); err != nil {
			return fmt.Errorf("purge payment events: %w", err)
		}
	}
	for _, e := range events {
		if err := qtx.InsertPaymentEvent(ctx, PaymentEventRow{
			AggregateID: e.AggregateID,
			MemberID:    e.MemberID,
			AmountPaise: e.AmountPaise,
			Method:      string(e.Method),
			Note:        e.Note,
			PaidAt:      sql.NullTime{Time: e.PaidAt, Valid: true},
		}); err != nil {
			return fmt.Errorf("insert payment event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	agg.Version++
	return nil
}

// DeleteAggregate removes the aggregate and, via cascade, its members
// and payment events. Irreversible.
func (r *SQLiteRepository) DeleteAggregate(ctx context.Context, id string) error {
	affected, err := r.queries.DeleteAggregate(ctx, id)
	if err != nil {
		return fmt.Errorf("delete aggregate: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	slog.InfoContext(ctx, "Aggregate deleted", "aggregate_id", id)
	return nil
}

// GetMember loads a single member with its owning aggregate ID.
func (r *SQLiteRepository) GetMember(ctx context.Context, memberID string) (*core.Member, string, error) {
	row, err := r.queries.GetMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", core.ErrNotFound
		}
		return nil, "", fmt.Errorf("get member: %w", err)
	}
	m := memberFromRow(row)
	return &m, row.AggregateID, nil
}

// MarkMessageSent stamps message_sent_at once. Returns false when the
// member was already marked, so a redelivered request is skipped.
// The stamp bumps the aggregate version: SaveAggregate rewrites the
// member set wholesale, so a save from a pre-stamp snapshot must hit
// the conflict path instead of silently erasing the stamp.
func (r *SQLiteRepository) MarkMessageSent(ctx context.Context, aggregateID, memberID string, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	affected, err := qtx.MarkMessageSent(ctx, memberID, aggregateID, sql.NullTime{Time: at, Valid: true})
	if err != nil {
		return false, fmt.Errorf("mark message sent: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if err := qtx.BumpAggregateVersion(ctx, aggregateID); err != nil {
		return false, fmt.Errorf("bump aggregate version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}

// ListPaymentEvents returns a member's recorded payments, oldest first.
func (r *SQLiteRepository) ListPaymentEvents(ctx context.Context, memberID string) ([]core.PaymentEvent, error) {
	rows, err := r.queries.ListPaymentEventsByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list payment events: %w", err)
	}
	out := make([]core.PaymentEvent, len(rows))
	for i, row := range rows {
		out[i] = core.PaymentEvent{
			ID:          row.ID,
			AggregateID: row.AggregateID,
			MemberID:    row.MemberID,
			AmountPaise: row.AmountPaise,
			Method:      core.PaymentMethod(row.Method),
			Note:        row.Note,
			PaidAt:      row.PaidAt.Time,
		}
	}
	return out, nil
}

func (r *SQLiteRepository) loadAggregate(ctx context.Context, row AggregateRow) (*core.Aggregate, error) {
	memberRows, err := r.queries.ListMembersByAggregate(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	agg := &core.Aggregate{
		ID:         row.ID,
		MatchRef:   row.MatchRef,
		TotalPaise: row.TotalPaise,
		Version:    row.Version,
		CreatedAt:  row.CreatedAt.Time,
		Members:    make([]core.Member, len(memberRows)),
	}
	for i, mr := range memberRows {
		agg.Members[i] = memberFromRow(mr)
	}
	return agg, nil
}

func insertMembers(ctx context.Context, qtx *Queries, agg *core.Aggregate) error {
	for i := range agg.Members {
		m := &agg.Members[i]
		row := MemberRow{
			ID:              m.ID,
			AggregateID:     agg.ID,
			Position:        int64(i),
			DisplayName:     m.DisplayName,
			Contact:         m.Contact,
			CalculatedPaise: m.CalculatedPaise,
			PaidPaise:       m.PaidPaise,
			SettledPaise:    m.SettledPaise,
			ScreenshotRef:   m.ScreenshotRef,
		}
		if amt, ok := m.Share.FixedPaise(); ok {
			row.ShareFixed = true
			row.SharePaise = amt
		}
		if m.MessageSentAt != nil {
			row.MessageSentAt = sql.NullTime{Time: *m.MessageSentAt, Valid: true}
		}
		if m.ScreenshotReceivedAt != nil {
			row.ScreenshotReceivedAt = sql.NullTime{Time: *m.ScreenshotReceivedAt, Valid: true}
		}
		if err := qtx.InsertMember(ctx, row); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
	}
	return nil
}

func memberFromRow(row MemberRow) core.Member {
	m := core.Member{
		ID:              row.ID,
		DisplayName:     row.DisplayName,
		Contact:         row.Contact,
		CalculatedPaise: row.CalculatedPaise,
		PaidPaise:       row.PaidPaise,
		SettledPaise:    row.SettledPaise,
		ScreenshotRef:   row.ScreenshotRef,
	}
	if row.ShareFixed {
		m.Share = core.FixedShare(row.SharePaise)
	}
	if row.MessageSentAt.Valid {
		t := row.MessageSentAt.Time
		m.MessageSentAt = &t
	}
	if row.ScreenshotReceivedAt.Valid {
		t := row.ScreenshotReceivedAt.Time
		m.ScreenshotReceivedAt = &t
	}
	return m
}
