package positions

import (
	"context"
	"fmt"
	"time"
)

// Redemption statuses
const (
	RedemptionPending = "pending"
	RedemptionDone    = "done"
	RedemptionExpired = "expired"
)

// Redemption is a queued sale of a partially filled position's shares.
// The redemption flow sells Remaining shares near $1 once the market settles.
type Redemption struct {
	ID         int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	PositionID int64
	TokenID    string
	Shares     float64 // filled shares when queued
	Remaining  float64 // shares not yet sold
	Unfilled   float64 // requested minus filled at entry
	Status     string
}

// Queue stores positions for the redemption flow. It never places orders.
type Queue struct {
	db *DB
}

// NewQueue wraps db
func NewQueue(db *DB) *Queue {
	return &Queue{db: db}
}

// Redeem records pos and queues its filled shares. A position that filled
// completely is not queued.
func (q *Queue) Redeem(ctx context.Context, pos Position) (int64, error) {
	if !pos.NeedsRedemption() {
		return 0, nil
	}
	if pos.ID == 0 {
		id, err := q.db.AddPosition(ctx, pos)
		if err != nil {
			return 0, err
		}
		pos.ID = id
	}

	now := q.db.now().UTC()
	result, err := q.db.db.ExecContext(ctx, `
		INSERT INTO redemptions (created_at, updated_at, position_id, token_id, shares, remaining, unfilled, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, now, now, pos.ID, pos.TokenID, pos.FilledSize, pos.FilledSize, pos.RequestedSize-pos.FilledSize, RedemptionPending)
	if err != nil {
		return 0, fmt.Errorf("queueing redemption: %w", err)
	}
	return result.LastInsertId()
}

// Pending returns queued redemptions, oldest first
func (q *Queue) Pending(ctx context.Context) ([]Redemption, error) {
	rows, err := q.db.db.QueryContext(ctx, `
		SELECT id, created_at, updated_at, position_id, token_id, shares, remaining, unfilled, status
		FROM redemptions WHERE status = ? ORDER BY id
	`, RedemptionPending)
	if err != nil {
		return nil, fmt.Errorf("querying redemptions: %w", err)
	}
	defer rows.Close()

	var out []Redemption
	for rows.Next() {
		var r Redemption
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt, &r.PositionID, &r.TokenID,
			&r.Shares, &r.Remaining, &r.Unfilled, &r.Status); err != nil {
			return nil, fmt.Errorf("scanning redemption row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordSale subtracts sold shares. The redemption is done once nothing remains.
func (q *Queue) RecordSale(ctx context.Context, id int64, sold float64) error {
	_, err := q.db.db.ExecContext(ctx, `
		UPDATE redemptions
		SET remaining = MAX(remaining - ?, 0),
			status = CASE WHEN remaining - ? <= 0 THEN ? ELSE status END,
			updated_at = ?
		WHERE id = ?
	`, sold, sold, RedemptionDone, q.db.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating redemption %d: %w", id, err)
	}
	return nil
}

// Expire marks a redemption abandoned.
func (q *Queue) Expire(ctx context.Context, id int64) error {
	_, err := q.db.db.ExecContext(ctx, `UPDATE redemptions SET status = ?, updated_at = ? WHERE id = ?`,
		RedemptionExpired, q.db.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("expiring redemption %d: %w", id, err)
	}
	return nil
}
