package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/andrebq/postbox/auth"
	"github.com/andrebq/postbox/internal/testutil"
	"github.com/andrebq/postbox/store"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	ctx := context.Background()
	st, cleanup := testutil.AcquireWritableStore(ctx, t, "test")
	defer cleanup()

	name := "Ana"
	u, err := auth.Register(ctx, st, "a@x.com", auth.PlainText("secret"), &name)
	if err != nil {
		t.Fatal(err)
	}
	if u.PasswordHash == "secret" || u.PasswordHash == "" {
		t.Fatalf("password should be hashed, got %q", u.PasswordHash)
	}
	stored, err := st.UserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotEqual(t, "secret", stored.PasswordHash)
	require.NoError(t, auth.CheckPassword(stored.PasswordHash, auth.PlainText("secret")))

	logged, err := auth.Login(ctx, st, "a@x.com", auth.PlainText("secret"))
	if err != nil {
		t.Fatal(err)
	} else if logged.ID != u.ID {
		t.Fatalf("login returned user %v expecting %v", logged.ID, u.ID)
	}

	_, err = auth.Login(ctx, st, "a@x.com", auth.PlainText("wrong"))
	if !errors.Is(err, auth.InvalidCredential{}) {
		t.Fatalf("wrong password should be InvalidCredential, got %#v", err)
	}

	_, err = auth.Login(ctx, st, "nobody@x.com", auth.PlainText("secret"))
	if !errors.As(err, &store.NotFound{}) {
		t.Fatalf("unknown email should be NotFound, got %#v", err)
	}

	_, err = auth.Login(ctx, st, "", auth.PlainText("secret"))
	if !errors.As(err, &auth.InvalidInput{}) {
		t.Fatalf("missing email should be InvalidInput, got %#v", err)
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	st, cleanup := testutil.AcquireWritableStore(ctx, t, "test")
	defer cleanup()

	passwd := auth.PlainText("secret")
	_, err := auth.Register(ctx, st, "a@x.com", passwd, nil)
	require.NoError(t, err)
	require.Equal(t, auth.PlainText{0, 0, 0, 0, 0, 0}, passwd, "password should be zeroed")

	_, err = auth.Register(ctx, st, "a@x.com", auth.PlainText("other"), nil)
	if !errors.As(err, &store.Conflict{}) {
		t.Fatalf("duplicated email should be a conflict, got %#v", err)
	}

	for _, tc := range []struct {
		email  string
		passwd string
	}{
		{"", "secret"},
		{"b@x.com", ""},
		{"   ", "secret"},
	} {
		_, err = auth.Register(ctx, st, tc.email, auth.PlainText(tc.passwd), nil)
		if !errors.As(err, &auth.InvalidInput{}) {
			t.Errorf("Register(%q, %q) should be InvalidInput, got %#v", tc.email, tc.passwd, err)
		}
	}

	blank := "  "
	u, err := auth.Register(ctx, st, "c@x.com", auth.PlainText("secret"), &blank)
	require.NoError(t, err)
	require.Nil(t, u.Name, "blank names are stored as missing")
}

func TestHashIsSalted(t *testing.T) {
	a, err := auth.HashPassword(auth.PlainText("secret"))
	require.NoError(t, err)
	b, err := auth.HashPassword(auth.PlainText("secret"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.NotContains(t, a, "secret")
}
