package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/andrebq/postbox/auth"
	"github.com/andrebq/postbox/store"
	"github.com/andrebq/postbox/store/sqlitestore"
)

type (
	TestLog interface {
		Fatal(...interface{})
		Log(...interface{})
	}
)

// TestKey is a fixed signing key, never use it outside tests.
var TestKey = auth.Key{
	0x70, 0x6f, 0x73, 0x74, 0x62, 0x6f, 0x78, 0x2d,
	0x74, 0x65, 0x73, 0x74, 0x2d, 0x6b, 0x65, 0x79,
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
	0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
}

func AcquireWritableStore(ctx context.Context, t TestLog, name string) (*sqlitestore.Control, func()) {
	dir, err := os.MkdirTemp("", "postbox-tests")
	if err != nil {
		t.Fatal(err)
	}
	abspath := filepath.Join(dir, name)
	ctl, err := sqlitestore.Open(ctx, abspath, true)
	if err != nil {
		t.Fatal(err)
	}
	return ctl, func() {
		err := ctl.Close()
		if err != nil {
			t.Log("unable to close store", err)
		}
		err = os.RemoveAll(dir)
		if err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}

// AcquireStore populates a store with loader and re-opens it as read-only.
func AcquireStore(ctx context.Context, t TestLog, name string, loader func(context.Context, *sqlitestore.Control) error) (*sqlitestore.Control, func()) {
	dir, err := os.MkdirTemp("", "postbox-tests")
	if err != nil {
		t.Fatal(err)
	}
	abspath := filepath.Join(dir, name)
	ctl, err := sqlitestore.Open(ctx, abspath, true)
	if err != nil {
		t.Fatal(err)
	}
	if loader != nil {
		err = loader(ctx, ctl)
		if err != nil {
			t.Fatal(err)
		}
	}
	ctl.Close()
	ctl, err = sqlitestore.Open(ctx, abspath, false)
	if err != nil {
		t.Fatal(err)
	}
	return ctl, func() {
		err := ctl.Close()
		if err != nil {
			t.Log("unable to close store", err)
		}
		err = os.RemoveAll(dir)
		if err != nil {
			t.Log("unable to cleanup temp dir", dir)
		}
	}
}

// SeedUser registers email with passwd using the same hashing as the api.
func SeedUser(ctx context.Context, t TestLog, users auth.UserStore, email, passwd string, name *string) store.User {
	u, err := auth.Register(ctx, users, email, auth.PlainText(passwd), name)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// Clock returns a time source that starts at start and moves forward
// by step on every call.
func Clock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}
