package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andrebq/postbox/auth"
	"github.com/andrebq/postbox/internal/testutil"
	"github.com/andrebq/postbox/store"
	"github.com/steinfletcher/apitest"
)

func newTestRealm(t *testing.T) (*SecurityRealm, *auth.Issuer) {
	denylist, err := auth.InMemoryDenylist(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	key := testutil.TestKey
	issuer := auth.NewIssuer(&key, time.Hour)
	return NewRealm(issuer, denylist, "", true), issuer
}

func TestProtect(t *testing.T) {
	sr, issuer := newTestRealm(t)
	var count uint32
	protected := sr.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddUint32(&count, 1)
		id, ok := IdentityFrom(r.Context())
		if !ok || id.Email != "ana@example.com" {
			http.Error(w, "missing identity", http.StatusInternalServerError)
			return
		}
		http.Error(w, "OK", http.StatusOK)
	}))
	apitest.Handler(protected).Get("/").Expect(t).
		Status(http.StatusUnauthorized).
		Body(`{"error":"Unauthorized"}`).
		End()
	apitest.Handler(protected).Get("/").Header("Authorization", "Bearer not-a-token").Expect(t).
		Status(http.StatusUnauthorized).End()

	tk, _, err := issuer.Issue(store.User{ID: 1, Email: "ana@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	apitest.Handler(protected).Get("/").Header("Authorization", fmt.Sprintf("Bearer %v", tk)).Expect(t).
		Status(http.StatusOK).End()
	apitest.Handler(protected).Get("/").Cookie(DefaultCookieName, tk).Expect(t).
		Status(http.StatusOK).End()
	if count != 2 {
		t.Fatal("Protected endpoint should have been called only twice")
	}
}

func TestSessionLifecycle(t *testing.T) {
	sr, _ := newTestRealm(t)

	rec := httptest.NewRecorder()
	id, err := sr.StartSession(rec, store.User{ID: 7, Email: "bob@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expecting one cookie got %v", cookies)
	}
	c := cookies[0]
	if c.Name != DefaultCookieName || !c.HttpOnly || c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Fatalf("unexpected cookie attributes: %#v", c)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	found, err := sr.Identify(req)
	if err != nil {
		t.Fatal(err)
	}
	if found != id {
		t.Fatalf("Expecting %v got %v", id, found)
	}

	rec = httptest.NewRecorder()
	if err := sr.EndSession(rec, req); err != nil {
		t.Fatal(err)
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 || cleared[0].Value != "" {
		t.Fatalf("sign out should clear the cookie, got %#v", cleared)
	}
	if _, err := sr.Identify(req); err == nil {
		t.Fatal("token should be rejected after sign out")
	}
}

func TestSecureCookie(t *testing.T) {
	denylist, err := auth.InMemoryDenylist(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	key := testutil.TestKey
	sr := NewRealm(auth.NewIssuer(&key, time.Hour), denylist, "custom", false)
	rec := httptest.NewRecorder()
	if _, err := sr.StartSession(rec, store.User{ID: 1, Email: "ana@example.com"}); err != nil {
		t.Fatal(err)
	}
	c := rec.Result().Cookies()[0]
	if c.Name != "custom" || !c.Secure {
		t.Fatalf("cookie should be secure and use the configured name, got %#v", c)
	}
}

type brokenDenylist struct{}

func (brokenDenylist) Revoke(ctx context.Context, tokenID string) error {
	return errors.New("denylist offline")
}

func (brokenDenylist) Revoked(ctx context.Context, tokenID string) (bool, error) {
	return false, errors.New("denylist offline")
}

func TestProtectDenylistFailure(t *testing.T) {
	key := testutil.TestKey
	issuer := auth.NewIssuer(&key, time.Hour)
	sr := NewRealm(issuer, brokenDenylist{}, "", true)
	protected := sr.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a checked session")
	}))

	tk, _, err := issuer.Issue(store.User{ID: 1, Email: "ana@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	apitest.Handler(protected).Get("/").Header("Authorization", fmt.Sprintf("Bearer %v", tk)).Expect(t).
		Status(http.StatusInternalServerError).
		Body(`{"error":"Something went wrong"}`).
		End()
	apitest.Handler(protected).Get("/").Header("Authorization", "Bearer not-a-token").Expect(t).
		Status(http.StatusUnauthorized).
		End()
}
