package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/andrebq/postbox/internal/config"
	"github.com/andrebq/postbox/internal/testutil"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
)

func TestNewHandler(t *testing.T) {
	ctx := context.Background()
	st, cleanup := testutil.AcquireWritableStore(ctx, t, "api")
	defer cleanup()
	key := testutil.TestKey
	cfg := config.Default()
	cfg.Session.InsecureCookie = true

	handler, err := NewHandler(ctx, cfg, st, &key)
	if err != nil {
		t.Fatal(err)
	}

	apitest.Handler(handler).
		Post("/api/auth/register").
		JSON(`{"email":"a@x.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.email", "a@x.com")).
		End()
	apitest.Handler(handler).
		Post("/api/auth/session").
		JSON(`{"email":"a@x.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusOK).
		CookiePresent(config.DefaultCookieName).
		End()
	apitest.Handler(handler).
		Get("/api/posts").
		Expect(t).
		Status(http.StatusOK).
		Body(`[]`).
		End()
	apitest.Handler(handler).
		Get("/").
		Expect(t).
		Status(http.StatusOK).
		Header("Content-Type", "text/html; charset=utf-8").
		End()
	apitest.Handler(handler).
		Get("/static/app.js").
		Expect(t).
		Status(http.StatusOK).
		End()
	apitest.Handler(handler).
		Get("/api/nothing-here").
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func TestNewHandlerRejectsTrustedProxy(t *testing.T) {
	ctx := context.Background()
	st, cleanup := testutil.AcquireWritableStore(ctx, t, "api")
	defer cleanup()
	key := testutil.TestKey
	cfg := config.Default()
	cfg.Throttle.TrustedProxies = []string{"router.internal"}

	if _, err := NewHandler(ctx, cfg, st, &key); err == nil {
		t.Fatal("hostnames are not valid trusted proxies")
	}
}
