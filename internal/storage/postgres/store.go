package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"discoveryScope/internal/model"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS discovered_fields (
		chain_id BIGINT NOT NULL,
		address TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		field TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		value JSONB,
		error_kind TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, address, block_number, field)
	)`,
	`CREATE TABLE IF NOT EXISTS block_numbers (
		chain_id BIGINT NOT NULL,
		ts BIGINT NOT NULL,
		block_number BIGINT NOT NULL,
		PRIMARY KEY (chain_id, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS indexer_state (
		name TEXT PRIMARY KEY,
		last_processed_ts BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Store provides Postgres persistence for snapshots, block numbers and run state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables the store writes to.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const upsertFieldSQL = `
	INSERT INTO discovered_fields (
		chain_id, address, block_number, field, name, value, error_kind, error_message, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, now(), now())
	ON CONFLICT (chain_id, address, block_number, field)
	DO UPDATE SET
		name = EXCLUDED.name,
		value = EXCLUDED.value,
		error_kind = EXCLUDED.error_kind,
		error_message = EXCLUDED.error_message,
		updated_at = now()
`

const selectFieldsSQL = `
	SELECT field, name, value::text, error_kind, error_message
	FROM discovered_fields
	WHERE chain_id=$1 AND address=$2 AND block_number=$3
	ORDER BY field
`

// PutSnapshot upserts one row per field of the snapshot.
func (s *Store) PutSnapshot(ctx context.Context, snapshot model.Snapshot) error {
	records, err := model.SnapshotRecords(snapshot)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	batch := snapshotBatch(records)

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// snapshotBatch queues one upsert per record. Failed fields carry no value
// and are stored as SQL NULL rather than an empty jsonb.
func snapshotBatch(records []model.FieldRecord) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, r := range records {
		var value *string
		if r.Value != "" {
			v := r.Value
			value = &v
		}
		batch.Queue(upsertFieldSQL,
			int64(r.ChainID),
			r.Address,
			int64(r.BlockNumber),
			r.Field,
			r.Name,
			value,
			r.ErrorKind,
			r.ErrorMessage,
		)
	}
	return batch
}

// GetSnapshot loads the snapshot stored for (chain, address, block).
func (s *Store) GetSnapshot(ctx context.Context, chainID uint64, address string, block uint64) (model.Snapshot, bool, error) {
	rows, err := s.pool.Query(ctx, selectFieldsSQL, int64(chainID), address, int64(block))
	if err != nil {
		return model.Snapshot{}, false, err
	}
	return collectSnapshot(rows, chainID, address, block)
}

func collectSnapshot(rows pgx.Rows, chainID uint64, address string, block uint64) (model.Snapshot, bool, error) {
	defer rows.Close()

	records := make([]model.FieldRecord, 0)
	for rows.Next() {
		r := model.FieldRecord{ChainID: chainID, Address: address, BlockNumber: block}
		var value *string
		if err := rows.Scan(&r.Field, &r.Name, &value, &r.ErrorKind, &r.ErrorMessage); err != nil {
			return model.Snapshot{}, false, err
		}
		if value != nil {
			r.Value = *value
		}
		records = append(records, r)
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
func (s *Store) BlockNumbers(ctx context.Context, chainID uint64) ([]model.BlockNumberRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ts, block_number FROM block_numbers WHERE chain_id=$1 ORDER BY ts
	`, int64(chainID))
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
func (s *Store) AddBlockNumber(ctx context.Context, chainID uint64, record model.BlockNumberRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO block_numbers (chain_id, ts, block_number)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id, ts) DO UPDATE SET block_number = EXCLUDED.block_number
	`, int64(chainID), int64(record.Timestamp), int64(record.BlockNumber))
	return err
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}
