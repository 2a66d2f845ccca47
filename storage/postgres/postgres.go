package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pypeaday/soonish-sub002/delivery"
	"github.com/pypeaday/soonish-sub002/pkg/secrets"
	"github.com/pypeaday/soonish-sub002/runtime"
	"github.com/pypeaday/soonish-sub002/storage"
)

// Postgres error codes matched when translating constraint violations into
// storage sentinels.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store implements storage.Store and runtime.Store on a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	appKey []byte
}

var (
	_ storage.Store      = (*Store)(nil)
	_ delivery.Directory = (*Store)(nil)
	_ delivery.Recorder  = (*Store)(nil)
	_ runtime.Store      = (*Store)(nil)
)

// New creates a Store. The app key encrypts channel targets at rest and must
// be secrets.KeySize bytes.
func New(pool *pgxpool.Pool, appKey []byte) (*Store, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	if len(appKey) != secrets.KeySize {
		return nil, ErrInvalidAppKey
	}
	return &Store{pool: pool, appKey: appKey}, nil
}

// pgErrCode extracts the Postgres error code, or "" for non-Postgres errors.
func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
