package identity

import (
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenSQLite opens a bun handle over sqlite. Meant for local hosts and
// tests; production deployments hand NewRepositoryManager their own *bun.DB.
func OpenSQLite(dsn string) (*bun.DB, error) {
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}
