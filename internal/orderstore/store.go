// Package orderstore keeps signed orders in SQLite so that signing and
// filling can happen in different processes.
package orderstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/harshkas4na/VolatilityProtection/internal/lop"
	"github.com/harshkas4na/VolatilityProtection/internal/orderstore/migrations"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrAlreadyExists = errors.New("order already stored")
	ErrNotPending    = errors.New("order is not pending")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusFilled, StatusCancelled, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Record is a stored order and its lifecycle state.
type Record struct {
	Hash      common.Hash
	Kind      string
	Order     *lop.SignedOrder
	Status    Status
	TxHash    common.Hash
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists orders in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the database at path, creating it and applying migrations as
// needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save verifies and inserts a signed order as pending.
func (s *Store) Save(ctx context.Context, kind string, so *lop.SignedOrder) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := so.Verify(); err != nil {
		return Record{}, fmt.Errorf("verify order: %w", err)
	}
	hash, err := so.Hash()
	if err != nil {
		return Record{}, err
	}
	payload, err := json.Marshal(so)
	if err != nil {
		return Record{}, fmt.Errorf("encode order: %w", err)
	}
	now := s.now().UTC()
	o := so.Order

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO orders (
		   order_hash, kind, chain_id, router, maker, maker_asset, taker_asset,
		   making_amount, taking_amount, signed_json, status, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hash.Hex(),
		strings.TrimSpace(kind),
		so.ChainID,
		so.Router.Hex(),
		o.Maker.Hex(),
		o.MakerAsset.Hex(),
		o.TakerAsset.Hex(),
		o.MakingAmount.String(),
		o.TakingAmount.String(),
		string(payload),
		string(StatusPending),
		toMillis(now),
		toMillis(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrAlreadyExists
		}
		return Record{}, fmt.Errorf("insert order: %w", err)
	}
	return Record{
		Hash:      hash,
		Kind:      kind,
		Order:     so,
		Status:    StatusPending,
		CreatedAt: fromMillis(toMillis(now)),
		UpdatedAt: fromMillis(toMillis(now)),
	}, nil
}

const selectColumns = `order_hash, kind, signed_json, status, tx_hash, attempts, last_error, created_at, updated_at`

func (s *Store) Get(ctx context.Context, hash common.Hash) (Record, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM orders WHERE order_hash = ?`, hash.Hex())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status  Status
	ChainID int64
	Router  common.Address
	Makers  []common.Address
	// Limit <= 0 means no limit.
	Limit int
}

// List returns orders matching f, oldest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM orders WHERE 1 = 1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	if f.ChainID != 0 {
		query += ` AND chain_id = ?`
		args = append(args, f.ChainID)
	}
	if (f.Router != common.Address{}) {
		query += ` AND router = ?`
		args = append(args, f.Router.Hex())
	}
	if len(f.Makers) > 0 {
		query += ` AND maker IN (?` + strings.Repeat(`, ?`, len(f.Makers)-1) + `)`
		for _, m := range f.Makers {
			args = append(args, m.Hex())
		}
	}
	query += ` ORDER BY created_at, order_hash`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) MarkFilled(ctx context.Context, hash, tx common.Hash) error {
	return s.finish(ctx, hash, StatusFilled, tx, "")
}

func (s *Store) MarkCancelled(ctx context.Context, hash, tx common.Hash) error {
	return s.finish(ctx, hash, StatusCancelled, tx, "")
}

// MarkFailed retires a pending order that will not be retried.
func (s *Store) MarkFailed(ctx context.Context, hash common.Hash, reason string) error {
	return s.finish(ctx, hash, StatusFailed, common.Hash{}, reason)
}

// RecordAttempt notes a failed fill attempt on a pending order and returns
// the attempt count.
func (s *Store) RecordAttempt(ctx context.Context, hash common.Hash, reason string) (int, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE orders SET attempts = attempts + 1, last_error = ?, updated_at = ?
		  WHERE order_hash = ? AND status = ?`,
		reason, toMillis(s.now()), hash.Hex(), string(StatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("record attempt: %w", err)
	}
	if err := s.checkUpdated(ctx, res, hash); err != nil {
		return 0, err
	}
	var attempts int
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT attempts FROM orders WHERE order_hash = ?`, hash.Hex()).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}
	return attempts, nil
}

func (s *Store) finish(ctx context.Context, hash common.Hash, status Status, tx common.Hash, reason string) error {
	txHex := ""
	if (tx != common.Hash{}) {
		txHex = tx.Hex()
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE orders SET status = ?, tx_hash = ?, last_error = ?, updated_at = ?
		  WHERE order_hash = ? AND status = ?`,
		string(status), txHex, reason, toMillis(s.now()), hash.Hex(), string(StatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	return s.checkUpdated(ctx, res, hash)
}

// checkUpdated maps a zero-row update to ErrNotFound or ErrNotPending.
func (s *Store) checkUpdated(ctx context.Context, res sql.Result, hash common.Hash) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, hash); err != nil {
		return err
	}
	return ErrNotPending
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec                  Record
		hashHex, txHex, body string
		status               string
		created, updated     int64
	)
	if err := row.Scan(&hashHex, &rec.Kind, &body, &status, &txHex, &rec.Attempts, &rec.LastError, &created, &updated); err != nil {
		return Record{}, err
	}
	var so lop.SignedOrder
	if err := json.Unmarshal([]byte(body), &so); err != nil {
		return Record{}, fmt.Errorf("decode order %s: %w", hashHex, err)
	}
	rec.Hash = common.HexToHash(hashHex)
	rec.Order = &so
	rec.Status = Status(status)
	if txHex != "" {
		rec.TxHash = common.HexToHash(txHex)
	}
	rec.CreatedAt = fromMillis(created)
	rec.UpdatedAt = fromMillis(updated)
	return rec, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
