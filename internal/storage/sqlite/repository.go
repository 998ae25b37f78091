package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"discoveryScope/internal/model"

	_ "modernc.org/sqlite"
)

// Repository stores snapshots and block numbers in a local SQLite file.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS discovered_fields (
			chain_id INTEGER NOT NULL,
			address TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			field TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			error_kind TEXT NOT NULL,
			error_message TEXT NOT NULL,
			PRIMARY KEY (chain_id, address, block_number, field)
		)`,
		`CREATE TABLE IF NOT EXISTS block_numbers (
			chain_id INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			block_number INTEGER NOT NULL,
			PRIMARY KEY (chain_id, ts)
		)`,
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// PutSnapshot upserts one row per field inside a single transaction.
func (r *Repository) PutSnapshot(ctx context.Context, snapshot model.Snapshot) error {
	records, err := model.SnapshotRecords(snapshot)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO discovered_fields
		(chain_id, address, block_number, field, name, value, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chain_id, address, block_number, field) DO UPDATE SET
			name = excluded.name,
			value = excluded.value,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, int64(rec.ChainID), rec.Address, int64(rec.BlockNumber), rec.Field,
			rec.Name, rec.Value, rec.ErrorKind, rec.ErrorMessage); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// GetSnapshot loads the snapshot stored for (chain, address, block).
func (r *Repository) GetSnapshot(ctx context.Context, chainID uint64, address string, block uint64) (model.Snapshot, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT field, name, value, error_kind, error_message
		FROM discovered_fields
		WHERE chain_id = ? AND address = ? AND block_number = ?
		ORDER BY field ASC`, int64(chainID), address, int64(block))
	if err != nil {
		return model.Snapshot{}, false, err
	}
	defer rows.Close()

	records := make([]model.FieldRecord, 0)
	for rows.Next() {
		rec := model.FieldRecord{ChainID: chainID, Address: address, BlockNumber: block}
		if err := rows.Scan(&rec.Field, &rec.Name, &rec.Value, &rec.ErrorKind, &rec.ErrorMessage); err != nil {
			return model.Snapshot{}, false, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return model.Snapshot{}, false, err
	}
	if len(records) == 0 {
		return model.Snapshot{}, false, nil
	}
	snapshot, err := model.SnapshotFromRecords(records)
	if err != nil {
		return model.Snapshot{}, false, err
	}
	return snapshot, true, nil
}

// BlockNumbers returns every cached (timestamp, block) pair for a chain.
func (r *Repository) BlockNumbers(ctx context.Context, chainID uint64) ([]model.BlockNumberRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT ts, block_number FROM block_numbers
		WHERE chain_id = ? ORDER BY ts ASC`, int64(chainID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.BlockNumberRecord, 0)
	for rows.Next() {
		var ts, block int64
		if err := rows.Scan(&ts, &block); err != nil {
			return nil, err
		}
		out = append(out, model.BlockNumberRecord{Timestamp: uint64(ts), BlockNumber: uint64(block)})
	}
	return out, rows.Err()
}

// AddBlockNumber upserts a (timestamp, block) pair.
func (r *Repository) AddBlockNumber(ctx context.Context, chainID uint64, record model.BlockNumberRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO block_numbers (chain_id, ts, block_number)
		VALUES (?, ?, ?)
		ON CONFLICT(chain_id, ts) DO UPDATE SET block_number = excluded.block_number`,
		int64(chainID), int64(record.Timestamp), int64(record.BlockNumber))
	return err
}

// LoadState returns the stored value for key.
func (r *Repository) LoadState(ctx context.Context, key string) (uint64, bool, error) {
	if key == "" {
		return 0, false, fmt.Errorf("state key required")
	}
	var value int64
	err := r.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(value), true, nil
}

// SaveState upserts the value for key.
func (r *Repository) SaveState(ctx context.Context, key string, value uint64) error {
	if key == "" {
		return fmt.Errorf("state key required")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, int64(value))
	return err
}
