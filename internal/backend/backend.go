// Package backend picks the store implementation from the data location.
package backend

import (
	"context"
	"strings"

	"github.com/andrebq/postbox/blog"
	"github.com/andrebq/postbox/store"
	"github.com/andrebq/postbox/store/pgstore"
	"github.com/andrebq/postbox/store/sqlitestore"
)

type (
	Store interface {
		blog.Store
		CreateUser(ctx context.Context, u store.NewUser) (store.User, error)
		UserByID(ctx context.Context, id int64) (store.User, error)
		Writeable() bool
		Close() error
	}
)

var (
	_ Store = (*sqlitestore.Control)(nil)
	_ Store = (*pgstore.Store)(nil)
)

// IsPostgres reports whether data is a postgres connection url, anything
// else is a directory for the sqlite store.
func IsPostgres(data string) bool {
	return strings.HasPrefix(data, "postgres://") || strings.HasPrefix(data, "postgresql://")
}

func Open(ctx context.Context, data string, readwrite bool) (Store, error) {
	if IsPostgres(data) {
		st, err := pgstore.Open(ctx, data, readwrite)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := sqlitestore.Open(ctx, data, readwrite)
	if err != nil {
		return nil, err
	}
	return st, nil
}
