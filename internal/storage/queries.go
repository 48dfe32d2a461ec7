package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so the same query
// methods run inside and outside transactions.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type AggregateRow struct {
	ID         string
	MatchRef   string
	TotalPaise int64
	Version    int64
	CreatedAt  sql.NullTime
}

type MemberRow struct {
	ID                   string
	AggregateID          string
	Position             int64
	DisplayName          string
	Contact              string
	ShareFixed           bool
	SharePaise           int64
	CalculatedPaise      int64
	PaidPaise            int64
	SettledPaise         int64
	MessageSentAt        sql.NullTime
	ScreenshotRef        string
	ScreenshotReceivedAt sql.NullTime
}

type PaymentEventRow struct {
	ID          int64
	AggregateID string
	MemberID    string
	AmountPaise int64
	Method      string
	Note        string
	PaidAt      sql.NullTime
}

const insertAggregate = `
INSERT INTO aggregates (id, match_ref, total_paise, version)
VALUES (?, ?, ?, ?)
`

func (q *Queries) InsertAggregate(ctx context.Context, row AggregateRow) error {
	_, err := q.db.ExecContext(ctx, insertAggregate, row.ID, row.MatchRef, row.TotalPaise, row.Version)
	return err
}

const getAggregate = `
SELECT id, match_ref, total_paise, version, created_at
FROM aggregates WHERE id = ?
`

func (q *Queries) GetAggregate(ctx context.Context, id string) (AggregateRow, error) {
	var row AggregateRow
	err := q.db.QueryRowContext(ctx, getAggregate, id).
		Scan(&row.ID, &row.MatchRef, &row.TotalPaise, &row.Version, &row.CreatedAt)
	return row, err
}

const listAggregatesByMatch = `
SELECT id, match_ref, total_paise, version, created_at
FROM aggregates WHERE match_ref = ? ORDER BY created_at, id
`

func (q *Queries) ListAggregatesByMatch(ctx context.Context, matchRef string) ([]AggregateRow, error) {
	rows, err := q.db.QueryContext(ctx, listAggregatesByMatch, matchRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AggregateRow
	for rows.Next() {
		var row AggregateRow
		if err := rows.Scan(&row.ID, &row.MatchRef, &row.TotalPaise, &row.Version, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const updateAggregateVersioned = `
UPDATE aggregates SET total_paise = ?, version = version + 1
WHERE id = ? AND version = ?
`

// UpdateAggregateVersioned bumps the version only when the caller still
// holds the latest one. Zero affected rows means a stale snapshot.
func (q *Queries) UpdateAggregateVersioned(ctx context.Context, id string, totalPaise, version int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateAggregateVersioned, totalPaise, id, version)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteAggregate = `DELETE FROM aggregates WHERE id = ?`

func (q *Queries) DeleteAggregate(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteAggregate, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const insertMember = `
INSERT INTO members (
    id, aggregate_id, position, display_name, contact,
    share_fixed, share_paise, calculated_paise, paid_paise, settled_paise,
    message_sent_at, screenshot_ref, screenshot_received_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertMember(ctx context.Context, row MemberRow) error {
	_, err := q.db.ExecContext(ctx, insertMember,
		row.ID, row.AggregateID, row.Position, row.DisplayName, row.Contact,
		row.ShareFixed, row.SharePaise, row.CalculatedPaise, row.PaidPaise, row.SettledPaise,
		row.MessageSentAt, row.ScreenshotRef, row.ScreenshotReceivedAt)
	return err
}

const listMembersByAggregate = `
SELECT id, aggregate_id, position, display_name, contact,
       share_fixed, share_paise, calculated_paise, paid_paise, settled_paise,
       message_sent_at, screenshot_ref, screenshot_received_at
FROM members WHERE aggregate_id = ? ORDER BY position
`

func (q *Queries) ListMembersByAggregate(ctx context.Context, aggregateID string) ([]MemberRow, error) {
	rows, err := q.db.QueryContext(ctx, listMembersByAggregate, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemberRow
	for rows.Next() {
		var row MemberRow
		if err := rows.Scan(
			&row.ID, &row.AggregateID, &row.Position, &row.DisplayName, &row.Contact,
			&row.ShareFixed, &row.SharePaise, &row.CalculatedPaise, &row.PaidPaise, &row.SettledPaise,
			&row.MessageSentAt, &row.ScreenshotRef, &row.ScreenshotReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const getMember = `
SELECT id, aggregate_id, position, display_name, contact,
       share_fixed, share_paise, calculated_paise, paid_paise, settled_paise,
       message_sent_at, screenshot_ref, screenshot_received_at
FROM members WHERE id = ?
`

func (q *Queries) GetMember(ctx context.Context, id string) (MemberRow, error) {
	var row MemberRow
	err := q.db.QueryRowContext(ctx, getMember, id).Scan(
		&row.ID, &row.AggregateID, &row.Position, &row.DisplayName, &row.Contact,
		&row.ShareFixed, &row.SharePaise, &row.CalculatedPaise, &row.PaidPaise, &row.SettledPaise,
		&row.MessageSentAt, &row.ScreenshotRef, &row.ScreenshotReceivedAt)
	return row, err
}

const deleteMembersByAggregate = `DELETE FROM members WHERE aggregate_id = ?`

func (q *Queries) DeleteMembersByAggregate(ctx context.Context, aggregateID string) error {
	_, err := q.db.ExecContext(ctx, deleteMembersByAggregate, aggregateID)
	return err
}

const markMessageSent = `
UPDATE members SET message_sent_at = ?
WHERE id = ? AND aggregate_id = ? AND message_sent_at IS NULL
`

// MarkMessageSent records the send time once; a second call for the
// same member affects no rows, which makes message redelivery safe.
func (q *Queries) MarkMessageSent(ctx context.Context, memberID, aggregateID string, at sql.NullTime) (int64, error) {
	res, err := q.db.ExecContext(ctx, markMessageSent, at, memberID, aggregateID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const bumpAggregateVersion = `
UPDATE aggregates SET version = version + 1 WHERE id = ?
`

// BumpAggregateVersion invalidates every snapshot taken before now,
// forcing their saves into the stale-version path.
func (q *Queries) BumpAggregateVersion(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, bumpAggregateVersion, id)
	return err
}

const insertPaymentEvent = `
INSERT INTO payment_events (aggregate_id, member_id, amount_paise, method, note, paid_at)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertPaymentEvent(ctx context.Context, row PaymentEventRow) error {
	_, err := q.db.ExecContext(ctx, insertPaymentEvent,
		row.AggregateID, row.MemberID, row.AmountPaise, row.Method, row.Note, row.PaidAt)
	return err
}

const listPaymentEventsByMember = `
SELECT id, aggregate_id, member_id, amount_paise, method, note, paid_at
FROM payment_events WHERE member_id = ? ORDER BY paid_at, id
`

func (q *Queries) ListPaymentEventsByMember(ctx context.Context, memberID string) ([]PaymentEventRow, error) {
	rows, err := q.db.QueryContext(ctx, listPaymentEventsByMember, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentEventRow
	for rows.Next() {
		var row PaymentEventRow
		if err := rows.Scan(&row.ID, &row.AggregateID, &row.MemberID,
			&row.AmountPaise, &row.Method, &row.Note, &row.PaidAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const deletePaymentEventsByMember = `DELETE FROM payment_events WHERE member_id = ?`

func (q *Queries) DeletePaymentEventsByMember(ctx context.Context, memberID string) error {
	_, err := q.db.ExecContext(ctx, deletePaymentEventsByMember, memberID)
	return err
}
