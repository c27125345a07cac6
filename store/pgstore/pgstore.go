// Package pgstore keeps users and posts in Postgres through a pgx
// connection pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andrebq/postbox/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type (
	Store struct {
		pool      *pgxpool.Pool
		writeable bool
	}
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	DefaultMaxConns = 10

	selectPost = `select p.post_id, p.title, p.content, p.user_id, p.created_at, u.name, u.email
	from posts p
	inner join users u on u.user_id = p.user_id`
)

// Open connects to the database at dsn. Read-only stores mark every
// session as read-only and expect the schema to exist already.
func Open(ctx context.Context, dsn string, readwrite bool) (*Store, error) {
	cfg, err := poolConfig(dsn, readwrite)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to postgres, cause %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping postgres, cause %w", err)
	}
	s := &Store{pool: pool, writeable: readwrite}
	if readwrite {
		if err = s.init(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("unable to init postgres schema, cause %w", err)
		}
	}
	return s, nil
}

// poolConfig parses dsn, pool_max_conns in the dsn wins over
// DefaultMaxConns.
func poolConfig(dsn string, readwrite bool) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse postgres dsn, cause %w", err)
	}
	if !strings.Contains(dsn, "pool_max_conns") {
		cfg.MaxConns = DefaultMaxConns
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	if !readwrite {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "set default_transaction_read_only = on")
			return err
		}
	}
	return cfg, nil
}

func (s *Store) init(ctx context.Context) error {
	for _, cmd := range []string{
		`create table if not exists users(
			user_id bigint generated always as identity primary key,
			email text not null unique,
			password text not null,
			name text
		)`,
		`create table if not exists posts(
			post_id bigint generated always as identity primary key,
			title text not null,
			content text,
			user_id bigint not null references users(user_id),
			created_at timestamptz not null
		)`,
		`create index if not exists idx_posts_created_at
			on posts(created_at desc, post_id desc)`,
	} {
		if _, err := s.pool.Exec(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u store.NewUser) (store.User, error) {
	email := store.NormalizeEmail(u.Email)
	var id int64
	err := s.pool.QueryRow(ctx, `insert into users(email, password, name) values ($1, $2, $3) returning user_id`,
		email, u.PasswordHash, u.Name).Scan(&id)
	if pgCode(err) == uniqueViolation {
		return store.User{}, store.Conflict{Kind: "user", Key: email}
	} else if err != nil {
		return store.User{}, fmt.Errorf("unable to store user %v, cause %w", email, err)
	}
	return store.User{ID: id, Email: email, PasswordHash: u.PasswordHash, Name: u.Name}, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (store.User, error) {
	email = store.NormalizeEmail(email)
	return s.scanUser(s.pool.QueryRow(ctx, `select user_id, email, password, name from users where email = $1`, email), email)
}

func (s *Store) UserByID(ctx context.Context, id int64) (store.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `select user_id, email, password, name from users where user_id = $1`, id), id)
}

func (s *Store) scanUser(row pgx.Row, key interface{}) (store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.User{}, store.NotFound{Kind: "user", Key: key}
	} else if err != nil {
		return store.User{}, fmt.Errorf("unable to load user %v, cause %w", key, err)
	}
	return u, nil
}

func (s *Store) CreatePost(ctx context.Context, p store.NewPost) (store.Post, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.Post{}, fmt.Errorf("unable to start transaction, cause %w", err)
	}
	defer tx.Rollback(ctx)
	var id int64
	err = tx.QueryRow(ctx, `insert into posts(title, content, user_id, created_at) values ($1, $2, $3, $4) returning post_id`,
		p.Title, p.Content, p.UserID, p.CreatedAt.UTC()).Scan(&id)
	if pgCode(err) == foreignKeyViolation {
		return store.Post{}, store.NotFound{Kind: "user", Key: p.UserID}
	} else if err != nil {
		return store.Post{}, fmt.Errorf("unable to store post, cause %w", err)
	}
	post, err := postByID(ctx, tx, id)
	if err != nil {
		return store.Post{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return store.Post{}, fmt.Errorf("unable to commit post %v, cause %w", id, err)
	}
	return post, nil
}

func (s *Store) ListPosts(ctx context.Context) ([]store.Post, error) {
	rows, err := s.pool.Query(ctx, selectPost+` order by p.created_at desc, p.post_id desc`)
	if err != nil {
		return nil, fmt.Errorf("unable to list posts, cause %w", err)
	}
	defer rows.Close()
	out := []store.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("unable to scan post, cause %w", err)
		}
		out = append(out, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to list posts, cause %w", err)
	}
	return out, nil
}

func (s *Store) PostByID(ctx context.Context, id int64) (store.Post, error) {
	return postByID(ctx, s.pool, id)
}

func (s *Store) UpdatePost(ctx context.Context, id int64, e store.PostEdit) (store.Post, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.Post{}, fmt.Errorf("unable to start transaction, cause %w", err)
	}
	defer tx.Rollback(ctx)
	var tag pgconn.CommandTag
	if e.ContentSet {
		tag, err = tx.Exec(ctx, `update posts set title = $1, content = $2 where post_id = $3`, e.Title, e.Content, id)
	} else {
		tag, err = tx.Exec(ctx, `update posts set title = $1 where post_id = $2`, e.Title, id)
	}
	if err != nil {
		return store.Post{}, fmt.Errorf("unable to update post %v, cause %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.Post{}, store.NotFound{Kind: "post", Key: id}
	}
	post, err := postByID(ctx, tx, id)
	if err != nil {
		return store.Post{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return store.Post{}, fmt.Errorf("unable to commit post %v, cause %w", id, err)
	}
	return post, nil
}

func (s *Store) DeletePost(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `delete from posts where post_id = $1`, id)
	if err != nil {
		return fmt.Errorf("unable to delete post %v, cause %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.NotFound{Kind: "post", Key: id}
	}
	return nil
}

func (s *Store) Writeable() bool {
	return s.writeable
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func postByID(ctx context.Context, q rowQuerier, id int64) (store.Post, error) {
	p, err := scanPost(q.QueryRow(ctx, selectPost+` where p.post_id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Post{}, store.NotFound{Kind: "post", Key: id}
	} else if err != nil {
		return store.Post{}, fmt.Errorf("unable to load post %v, cause %w", id, err)
	}
	return p, nil
}

func scanPost(row pgx.Row) (store.Post, error) {
	var p store.Post
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.UserID, &p.CreatedAt, &p.Author.Name, &p.Author.Email)
	if err != nil {
		return store.Post{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
