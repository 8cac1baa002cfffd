package toolkit

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
)

// Querier runs read-only SQL for the database tool. A pgx connection pool
// satisfies it through PoolQuerier.
type Querier interface {
	Query(ctx context.Context, sql string) (Rows, error)
}

// Rows is the subset of pgx.Rows the database tool consumes.
type Rows interface {
	FieldDescriptions() []pgconn.FieldDescription
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
}
