/*
Package sqlite provides the SQLite-backed LocalStore.

PURPOSE:
  Persists engine state across restarts for offline resilience: account
  balances and purchase histories, the pending purchase marker left by
  an interrupted checkout, the last full snapshot collection, and the
  guest sequence counter. Reloaded at process start, then reconciled via
  the scheduler's first pull.

KEY TABLES:
  accounts:   one row per ledger account (points + feature sets)
  purchases:  purchase history, insertion order = completion order
  snapshots:  last persisted leaderboard collection, position-ordered
  kv:         singletons (pending marker, guest counter, last package)

WAL MODE:
  Opened with WAL for better concurrency: readers don't block the
  single writer, and crash recovery is cleaner.

USAGE:
  local, err := sqlite.New("./data/gamify.db") // ":memory:" for tests
  defer local.Close()

SEE ALSO:
  - store/store.go: LocalStore interface
  - store/memory: the in-memory RemoteStore counterpart
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/gamify-engine/leaderboard"
	"github.com/warp/gamify-engine/ledger"
	"github.com/warp/gamify-engine/store"
)

// Store implements store.LocalStore on SQLite.
type Store struct {
	db *sql.DB
}

var _ store.LocalStore = (*Store)(nil)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		points INTEGER NOT NULL,
		purchased_features TEXT NOT NULL,
		enabled_features TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		package_id TEXT NOT NULL,
		points INTEGER NOT NULL,
		correlation_id TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_purchases_account ON purchases(account_id);

	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, state ledger.AccountState) error {
	purchased, err := json.Marshal(state.PurchasedFeatures)
	if err != nil {
		return err
	}
	enabled, err := json.Marshal(state.EnabledFeatures)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, points, purchased_features, enabled_features)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			points = excluded.points,
			purchased_features = excluded.purchased_features,
			enabled_features = excluded.enabled_features`,
		string(state.ID), state.Points, string(purchased), string(enabled))
	if err != nil {
		return err
	}

	for _, rec := range state.Purchases {
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO purchases
				(id, account_id, package_id, points, correlation_id, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, string(rec.AccountID), rec.PackageID, rec.Points,
			rec.CorrelationID, string(rec.Status), rec.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) LoadAccounts(ctx context.Context) ([]ledger.AccountState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, points, purchased_features, enabled_features FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []ledger.AccountState
	for rows.Next() {
		var (
			id                 string
			points             int64
			purchased, enabled string
		)
		if err := rows.Scan(&id, &points, &purchased, &enabled); err != nil {
			return nil, err
		}

		state := ledger.AccountState{ID: ledger.AccountID(id), Points: points}
		if err := json.Unmarshal([]byte(purchased), &state.PurchasedFeatures); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(enabled), &state.EnabledFeatures); err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range states {
		purchases, err := s.loadPurchases(ctx, states[i].ID)
		if err != nil {
			return nil, err
		}
		states[i].Purchases = purchases
	}
	return states, nil
}

func (s *Store) loadPurchases(ctx context.Context, id ledger.AccountID) ([]ledger.PurchaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, package_id, points, correlation_id, status, created_at
		FROM purchases WHERE account_id = ? ORDER BY rowid`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ledger.PurchaseRecord
	for rows.Next() {
		var (
			rec       ledger.PurchaseRecord
			status    string
			createdAt string
		)
		rec.AccountID = id
		if err := rows.Scan(&rec.ID, &rec.PackageID, &rec.Points, &rec.CorrelationID, &status, &createdAt); err != nil {
			return nil, err
		}
		rec.Status = ledger.PurchaseStatus(status)
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// =============================================================================
// LEADERBOARD
// =============================================================================

const keyGuestCounter = "guest_counter"

func (s *Store) SaveLeaderboard(ctx context.Context, state leaderboard.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots`); err != nil {
		return err
	}
	for i, snap := range state.Snapshots {
		doc, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO snapshots (id, position, doc) VALUES (?, ?, ?)`,
			string(snap.ID), i, string(doc))
		if err != nil {
			return err
		}
	}

	if err := setKV(ctx, tx, keyGuestCounter, fmt.Sprintf("%d", state.GuestCounter)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) LoadLeaderboard(ctx context.Context) (leaderboard.State, error) {
	var state leaderboard.State

	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM snapshots ORDER BY position`)
	if err != nil {
		return state, err
	}
	defer rows.Close()

	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return state, err
		}
		var snap leaderboard.Snapshot
		if err := json.Unmarshal([]byte(doc), &snap); err != nil {
			return state, err
		}
		state.Snapshots = append(state.Snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return state, err
	}

	raw, err := s.getKV(ctx, keyGuestCounter)
	if err != nil {
		return state, err
	}
	if raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &state.GuestCounter); err != nil {
			return state, err
		}
	}
	return state, nil
}

// =============================================================================
// PENDING PURCHASE MARKER + LAST PACKAGE
// =============================================================================

const (
	keyPendingPurchase = "pending_purchase"
	keyLastPackage     = "last_purchased_package"
)

func (s *Store) SavePendingPurchase(ctx context.Context, p store.PendingPurchase) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return setKV(ctx, s.db, keyPendingPurchase, string(doc))
}

func (s *Store) LoadPendingPurchase(ctx context.Context) (*store.PendingPurchase, error) {
	raw, err := s.getKV(ctx, keyPendingPurchase)
	if err != nil || raw == "" {
		return nil, err
	}
	var p store.PendingPurchase
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ClearPendingPurchase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, keyPendingPurchase)
	return err
}

func (s *Store) SetLastPurchasedPackage(ctx context.Context, packageID string) error {
	return setKV(ctx, s.db, keyLastPackage, packageID)
}

func (s *Store) LastPurchasedPackage(ctx context.Context) (string, error) {
	return s.getKV(ctx, keyLastPackage)
}

// =============================================================================
// KV HELPERS
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setKV(ctx context.Context, e execer, key, value string) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) getKV(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
