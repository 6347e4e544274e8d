package positions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Attempt is one row of the append-only value-bet log. A bet that reaches
// the executor writes two rows: ATTEMPTED before the call, then its outcome.
type Attempt struct {
	ID                 int64
	CreatedAt          time.Time
	RunID              string
	EventSlug          string
	MarketSlug         string
	Outcome            string
	TokenID            string
	TrueProb           float64
	Price              float64
	ExpectedPayoutPer1 float64
	RequestedSize      float64
	FilledSize         float64
	Executed           bool
	State              string
	OrderID            string
	Error              string
	DryRun             bool
}

// Position is a filled or partially filled order.
type Position struct {
	ID            int64
	CreatedAt     time.Time
	EventSlug     string
	MarketSlug    string
	Outcome       string
	TokenID       string
	Price         float64
	RequestedSize float64
	FilledSize    float64
	OrderID       string
}

// NeedsRedemption reports whether part of the order went unfilled.
func (p Position) NeedsRedemption() bool {
	return p.FilledSize < p.RequestedSize
}

// DB handles attempt, position and redemption storage
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// NewDB opens (or creates) the sqlite database at dbPath
func NewDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer; per-game goroutines would otherwise hit SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db, now: time.Now}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME NOT NULL,
		run_id TEXT NOT NULL,
		event_slug TEXT NOT NULL,
		market_slug TEXT NOT NULL,
		outcome TEXT NOT NULL,
		token_id TEXT NOT NULL,
		true_prob REAL NOT NULL,
		price REAL NOT NULL,
		expected_payout_per_1 REAL NOT NULL,
		requested_size REAL NOT NULL,
		filled_size REAL NOT NULL,
		executed INTEGER NOT NULL,
		state TEXT NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		dry_run INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME NOT NULL,
		event_slug TEXT NOT NULL,
		market_slug TEXT NOT NULL,
		outcome TEXT NOT NULL,
		token_id TEXT NOT NULL,
		price REAL NOT NULL,
		requested_size REAL NOT NULL,
		filled_size REAL NOT NULL,
		order_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS redemptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		position_id INTEGER NOT NULL REFERENCES positions(id),
		token_id TEXT NOT NULL,
		shares REAL NOT NULL,
		remaining REAL NOT NULL,
		unfilled REAL NOT NULL,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_market ON attempts(event_slug, market_slug, outcome);
	CREATE INDEX IF NOT EXISTS idx_positions_event ON positions(event_slug);
	CREATE INDEX IF NOT EXISTS idx_redemptions_status ON redemptions(status);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// LogAttempt appends one row to the attempt log
func (d *DB) LogAttempt(ctx context.Context, a Attempt) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = d.now().UTC()
	}
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO attempts (created_at, run_id, event_slug, market_slug, outcome, token_id,
			true_prob, price, expected_payout_per_1, requested_size, filled_size,
			executed, state, order_id, error, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.CreatedAt, a.RunID, a.EventSlug, a.MarketSlug, a.Outcome, a.TokenID,
		a.TrueProb, a.Price, a.ExpectedPayoutPer1, a.RequestedSize, a.FilledSize,
		a.Executed, a.State, a.OrderID, a.Error, a.DryRun)
	if err != nil {
		return 0, fmt.Errorf("inserting attempt: %w", err)
	}

	return result.LastInsertId()
}

const attemptColumns = `id, created_at, run_id, event_slug, market_slug, outcome, token_id,
	true_prob, price, expected_payout_per_1, requested_size, filled_size,
	executed, state, order_id, error, dry_run`

func scanAttempt(rows *sql.Rows) (Attempt, error) {
	var a Attempt
	err := rows.Scan(&a.ID, &a.CreatedAt, &a.RunID, &a.EventSlug, &a.MarketSlug, &a.Outcome, &a.TokenID,
		&a.TrueProb, &a.Price, &a.ExpectedPayoutPer1, &a.RequestedSize, &a.FilledSize,
		&a.Executed, &a.State, &a.OrderID, &a.Error, &a.DryRun)
	return a, err
}

// ListAttempts returns the newest limit rows, newest first. limit <= 0 returns all.
func (d *DB) ListAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	q := `SELECT ` + attemptColumns + ` FROM attempts ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning attempt row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AttemptedMarkets returns the distinct (event, market, outcome) triples that
// reached the executor since the given time.
func (d *DB) AttemptedMarkets(ctx context.Context, since time.Time) ([][3]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT event_slug, market_slug, outcome FROM attempts
		WHERE executed = 1 AND created_at >= ?
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying attempted markets: %w", err)
	}
	defer rows.Close()

	var out [][3]string
	for rows.Next() {
		var k [3]string
		if err := rows.Scan(&k[0], &k[1], &k[2]); err != nil {
			return nil, fmt.Errorf("scanning attempted market: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// AddPosition records a fill
func (d *DB) AddPosition(ctx context.Context, pos Position) (int64, error) {
	if pos.CreatedAt.IsZero() {
		pos.CreatedAt = d.now().UTC()
	}
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO positions (created_at, event_slug, market_slug, outcome, token_id, price, requested_size, filled_size, order_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pos.CreatedAt, pos.EventSlug, pos.MarketSlug, pos.Outcome, pos.TokenID, pos.Price,
		pos.RequestedSize, pos.FilledSize, pos.OrderID)
	if err != nil {
		return 0, fmt.Errorf("inserting position: %w", err)
	}

	return result.LastInsertId()
}

const positionColumns = `id, created_at, event_slug, market_slug, outcome, token_id, price, requested_size, filled_size, order_id`

func scanPosition(row interface{ Scan(...any) error }) (Position, error) {
	var p Position
	err := row.Scan(&p.ID, &p.CreatedAt, &p.EventSlug, &p.MarketSlug, &p.Outcome, &p.TokenID,
		&p.Price, &p.RequestedSize, &p.FilledSize, &p.OrderID)
	return p, err
}

// GetPosition retrieves a position by ID. A missing row returns (nil, nil).
func (d *DB) GetPosition(ctx context.Context, id int64) (*Position, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)

	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning position: %w", err)
	}
	return &pos, nil
}

// GetAllPositions retrieves all positions, newest first
func (d *DB) GetAllPositions(ctx context.Context) ([]Position, error) {
	return d.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions ORDER BY id DESC`)
}

// GetPositionsByEvent retrieves positions for one counterparty event
func (d *DB) GetPositionsByEvent(ctx context.Context, eventSlug string) ([]Position, error) {
	return d.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions WHERE event_slug = ? ORDER BY id DESC`, eventSlug)
}

func (d *DB) queryPositions(ctx context.Context, q string, args ...any) ([]Position, error) {
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning position row: %w", err)
		}
		positions = append(positions, pos)
	}

	return positions, rows.Err()
}
