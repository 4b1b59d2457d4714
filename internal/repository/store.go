package repository

import (
	"context"

	"github.com/mkaneda/lotimport/internal/db"

	"github.com/jackc/pgx/v5"
)

// pgxStore implements Store over a pgx pool or transaction.
type pgxStore struct {
	conn *db.Connection
	dbtx DBTX
}

// NewStore creates a Store backed by the connection pool.
func NewStore(conn *db.Connection) Store {
	return &pgxStore{conn: conn, dbtx: conn.Pool}
}

func (s *pgxStore) Jobs() JobRepository        { return &jobRepository{db: s.dbtx} }
func (s *pgxStore) Files() FileRepository      { return &fileRepository{db: s.dbtx} }
func (s *pgxStore) Staging() StagingRepository { return &stagingRepository{db: s.dbtx} }
func (s *pgxStore) Records() RecordRepository  { return &recordRepository{db: s.dbtx} }

// InTx runs fn with a Store bound to a single transaction. Not reentrant:
// calling InTx on the transactional store begins a second transaction.
func (s *pgxStore) InTx(ctx context.Context, fn func(Store) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgxStore{conn: s.conn, dbtx: tx})
	})
}
