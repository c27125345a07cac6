// Package sqlitestore keeps users and posts in a single sqlite database
// stored under a data directory.
//
// A store opened as writable creates its schema on first use, a store
// opened as read-only refuses to start unless the schema is already
// there. Multiple read-only processes can share the same directory with
// one writer, which is how `serve query` instances are deployed.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andrebq/postbox/store"
	"github.com/cespare/xxhash/v2"
	"github.com/mattn/go-sqlite3"
)

type (
	Control struct {
		db        *sql.DB
		writeable bool
	}

	querier interface {
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	scanner interface {
		Scan(dest ...interface{}) error
	}
)

const (
	DatabaseFile = "postbox.db"

	selectPost = `select p.post_id, p.title, p.content, p.user_id, p.created_at, u.name, u.email
	from posts p
	inner join users u on u.user_id = p.user_id`
)

func openDatabase(ctx context.Context, dir string, readwrite bool) (*sql.DB, error) {
	file := filepath.Join(dir, DatabaseFile)
	if readwrite {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, fmt.Errorf("unable to create directory %v to store data, cause %w", dir, err)
		}
	}
	var connstr string
	if readwrite {
		connstr = fmt.Sprintf("file:%v?_foreign_keys=on&_journal=wal&_busy_timeout=5000&mode=rwc", file)
	} else {
		connstr = fmt.Sprintf("file:%v?_foreign_keys=on&_busy_timeout=5000&mode=ro", file)
	}
	conn, err := sql.Open("sqlite3", connstr)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v, cause %w", file, err)
	}
	err = conn.PingContext(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to ping database %v, cause %w", file, err)
	}
	return conn, nil
}

// Open returns a store backed by the database inside dir. The returned
// Control owns a connection pool and must be closed by the caller.
func Open(ctx context.Context, dir string, readwrite bool) (*Control, error) {
	conn, err := openDatabase(ctx, dir, readwrite)
	if err != nil {
		return nil, err
	}
	c := &Control{db: conn, writeable: readwrite}
	if readwrite {
		err = c.init(ctx)
	} else {
		err = c.verifySchema(ctx)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to init store at %v, cause %w", dir, err)
	}
	return c, nil
}

func (c *Control) Writeable() bool {
	return c.writeable
}

func (c *Control) CreateUser(ctx context.Context, u store.NewUser) (store.User, error) {
	if !c.writeable {
		return store.User{}, ReadOnly{}
	}
	email, emailHash := c.normalizeEmail(u.Email)
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return store.User{}, fmt.Errorf("unable to start transaction, cause %w", err)
	}
	defer tx.Rollback()
	id, err := c.nextSeq(ctx, tx, "users")
	if err != nil {
		return store.User{}, err
	}
	_, err = tx.ExecContext(ctx, `insert into users(user_id, email, email_hash64, password, name) values (?, ?, ?, ?, ?)`,
		id, email, emailHash, u.PasswordHash, u.Name)
	if isConstraint(err, sqlite3.ErrConstraintUnique) {
		return store.User{}, store.Conflict{Kind: "user", Key: email}
	} else if err != nil {
		return store.User{}, fmt.Errorf("unable to store user %v, cause %w", email, err)
	}
	if err = tx.Commit(); err != nil {
		return store.User{}, fmt.Errorf("unable to commit user %v, cause %w", email, err)
	}
	return store.User{ID: id, Email: email, PasswordHash: u.PasswordHash, Name: u.Name}, nil
}

func (c *Control) UserByEmail(ctx context.Context, email string) (store.User, error) {
	email, emailHash := c.normalizeEmail(email)
	var u store.User
	err := c.db.QueryRowContext(ctx, `select user_id, email, password, name from users where email_hash64 = ? and email = ?`, emailHash, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, store.NotFound{Kind: "user", Key: email}
	} else if err != nil {
		return store.User{}, fmt.Errorf("unable to load user %v, cause %w", email, err)
	}
	return u, nil
}

func (c *Control) UserByID(ctx context.Context, id int64) (store.User, error) {
	var u store.User
	err := c.db.QueryRowContext(ctx, `select user_id, email, password, name from users where user_id = ?`, id).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return store.User{}, store.NotFound{Kind: "user", Key: id}
	} else if err != nil {
		return store.User{}, fmt.Errorf("unable to load user %v, cause %w", id, err)
	}
	return u, nil
}

func (c *Control) CreatePost(ctx context.Context, p store.NewPost) (store.Post, error) {
	if !c.writeable {
		return store.Post{}, ReadOnly{}
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Post{}, fmt.Errorf("unable to start transaction, cause %w", err)
	}
	defer tx.Rollback()
	id, err := c.nextSeq(ctx, tx, "posts")
	if err != nil {
		return store.Post{}, err
	}
	_, err = tx.ExecContext(ctx, `insert into posts(post_id, title, content, user_id, created_at) values (?, ?, ?, ?, ?)`,
		id, p.Title, p.Content, p.UserID, p.CreatedAt.UnixMicro())
	if isConstraint(err, sqlite3.ErrConstraintForeignKey) {
		return store.Post{}, store.NotFound{Kind: "user", Key: p.UserID}
	} else if err != nil {
		return store.Post{}, fmt.Errorf("unable to store post, cause %w", err)
	}
	post, err := c.postByID(ctx, tx, id)
	if err != nil {
		return store.Post{}, err
	}
	if err = tx.Commit(); err != nil {
		return store.Post{}, fmt.Errorf("unable to commit post %v, cause %w", id, err)
	}
	return post, nil
}

// ListPosts returns every post, most recent first.
func (c *Control) ListPosts(ctx context.Context) ([]store.Post, error) {
	rows, err := c.db.QueryContext(ctx, selectPost+` order by p.created_at desc, p.post_id desc`)
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

func (c *Control) PostByID(ctx context.Context, id int64) (store.Post, error) {
	return c.postByID(ctx, c.db, id)
}

func (c *Control) UpdatePost(ctx context.Context, id int64, e store.PostEdit) (store.Post, error) {
	if !c.writeable {
		return store.Post{}, ReadOnly{}
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Post{}, fmt.Errorf("unable to start transaction, cause %w", err)
	}
	defer tx.Rollback()
	var res sql.Result
	if e.ContentSet {
		res, err = tx.ExecContext(ctx, `update posts set title = ?, content = ? where post_id = ?`, e.Title, e.Content, id)
	} else {
		res, err = tx.ExecContext(ctx, `update posts set title = ? where post_id = ?`, e.Title, id)
	}
	if err != nil {
		return store.Post{}, fmt.Errorf("unable to update post %v, cause %w", id, err)
	}
	if err = expectOne(res, "post", id); err != nil {
		return store.Post{}, err
	}
	post, err := c.postByID(ctx, tx, id)
	if err != nil {
		return store.Post{}, err
	}
	if err = tx.Commit(); err != nil {
		return store.Post{}, fmt.Errorf("unable to commit post %v, cause %w", id, err)
	}
	return post, nil
}

func (c *Control) DeletePost(ctx context.Context, id int64) error {
	if !c.writeable {
		return ReadOnly{}
	}
	res, err := c.db.ExecContext(ctx, `delete from posts where post_id = ?`, id)
	if err != nil {
		return fmt.Errorf("unable to delete post %v, cause %w", id, err)
	}
	return expectOne(res, "post", id)
}

func (c *Control) postByID(ctx context.Context, q querier, id int64) (store.Post, error) {
	p, err := scanPost(q.QueryRowContext(ctx, selectPost+` where p.post_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return store.Post{}, store.NotFound{Kind: "post", Key: id}
	} else if err != nil {
		return store.Post{}, fmt.Errorf("unable to load post %v, cause %w", id, err)
	}
	return p, nil
}

func scanPost(row scanner) (store.Post, error) {
	var p store.Post
	var createdAt int64
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.UserID, &createdAt, &p.Author.Name, &p.Author.Email)
	if err != nil {
		return store.Post{}, err
	}
	p.CreatedAt = time.UnixMicro(createdAt).UTC()
	return p, nil
}

func expectOne(res sql.Result, kind string, key interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unable to check affected rows for %v %v, cause %w", kind, key, err)
	}
	if n == 0 {
		return store.NotFound{Kind: kind, Key: key}
	}
	return nil
}

func (c *Control) nextSeq(ctx context.Context, q querier, seq string) (int64, error) {
	var val int64
	err := q.QueryRowContext(ctx, `insert into counters (name, val) values (?, 1) on conflict do update set val = val + 1 returning val`, seq).Scan(&val)
	if err != nil {
		return 0, fmt.Errorf("unable to increment sequence %v, cause %w", seq, err)
	}
	return val, nil
}

func (c *Control) normalizeEmail(email string) (string, int64) {
	email = store.NormalizeEmail(email)
	return email, int64(xxhash.Sum64String(email))
}

func isConstraint(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}

func (c *Control) init(ctx context.Context) error {
	for _, cmd := range []string{
		`create table if not exists counters(
			name text not null primary key,
			val integer not null
		)`,
		`create table if not exists users(
			user_id integer not null primary key,
			email text not null unique,
			email_hash64 integer not null,
			password text not null,
			name text
		)`,
		`create index if not exists idx_users_email_hash64
			on users(email_hash64)
		`,
		`create table if not exists posts(
			post_id integer not null primary key,
			title text not null,
			content text,
			user_id integer not null,
			created_at integer not null,
			foreign key (user_id) references users(user_id)
		)`,
		`create index if not exists idx_posts_created_at
			on posts(created_at desc, post_id desc)
		`,
	} {
		_, err := c.db.ExecContext(ctx, cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Control) Close() error {
	return c.db.Close()
}
