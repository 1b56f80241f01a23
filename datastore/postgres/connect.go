package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/purldb/purldb"
)

// Connect initializes a [pgxpool.Pool] based on the connection string.
func Connect(ctx context.Context, connString string, applicationName string) (*pgxpool.Pool, error) {
	const op = `datastore/postgres/Connect`
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, &purldb.Error{
			Op:      op,
			Kind:    purldb.ErrInvalid,
			Message: "failed to parse connection string",
			Inner: &purldb.Error{
				// Permanent because the same connection string should always
				// yield an error.
				Kind:  purldb.ErrPermanent,
				Inner: err,
			},
		}
	}
	const appnameKey = `application_name`
	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params[appnameKey]; !ok {
		params[appnameKey] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, &purldb.Error{
			Op:      op,
			Kind:    purldb.ErrPrecondition,
			Message: "failed to create connection pool",
			Inner:   err,
		}
	}

	return pool, nil
}
