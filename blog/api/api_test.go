package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andrebq/postbox/auth"
	authapi "github.com/andrebq/postbox/auth/api"
	"github.com/andrebq/postbox/blog"
	"github.com/andrebq/postbox/internal/testutil"
	"github.com/andrebq/postbox/internal/throttle"
	"github.com/andrebq/postbox/store"
	"github.com/andrebq/postbox/store/sqlitestore"
	"github.com/steinfletcher/apitest"
	jsonpath "github.com/steinfletcher/apitest-jsonpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	handler http.Handler
	store   *sqlitestore.Control
	posts   *blog.Service
	issuer  *auth.Issuer
}

func acquireAPI(ctx context.Context, t *testing.T, limiter *throttle.Limiter) (*testAPI, func()) {
	st, cleanup := testutil.AcquireWritableStore(ctx, t, "api")
	denylist, err := auth.InMemoryDenylist(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	key := testutil.TestKey
	issuer := auth.NewIssuer(&key, time.Hour)
	posts := blog.New(st)
	handler, err := AsHandler(ctx, Options{
		Posts:    posts,
		Users:    st,
		Realm:    authapi.NewRealm(issuer, denylist, "", true),
		Throttle: limiter,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &testAPI{handler: handler, store: st, posts: posts, issuer: issuer}, cleanup
}

func (a *testAPI) bearer(t *testing.T, u store.User) string {
	tk, _, err := a.issuer.Issue(u)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("Bearer %v", tk)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	api, cleanup := acquireAPI(ctx, t, nil)
	defer cleanup()

	apitest.Handler(api.handler).
		Post("/api/auth/register").
		JSON(`{"email":"a@x.com","password":"secret","name":"Ana"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.id", float64(1))).
		Assert(jsonpath.Equal("$.email", "a@x.com")).
		Assert(jsonpath.Equal("$.name", "Ana")).
		Assert(jsonpath.NotPresent("$.password")).
		End()

	apitest.Handler(api.handler).
		Post("/api/auth/register").
		JSON(`{"email":"A@X.com","password":"other"}`).
		Expect(t).
		Status(http.StatusConflict).
		Body(`{"error":"Email already registered"}`).
		End()

	apitest.Handler(api.handler).
		Post("/api/auth/register").
		JSON(`{"email":"b@x.com"}`).
		Expect(t).
		Status(http.StatusBadRequest).
		Body(`{"error":"Missing email or password"}`).
		End()

	apitest.Handler(api.handler).
		Post("/api/auth/register").
		JSON(`{"email":"b@x.com","password":"secret","admin":true}`).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	api, cleanup := acquireAPI(ctx, t, nil)
	defer cleanup()
	testutil.SeedUser(ctx, t, api.store, "a@x.com", "secret", nil)

	apitest.Handler(api.handler).
		Post("/api/auth/login").
		JSON(`{"email":"a@x.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.message", "Login successful")).
		Assert(jsonpath.Equal("$.user.email", "a@x.com")).
		CookieNotPresent(authapi.DefaultCookieName).
		End()

	apitest.Handler(api.handler).
		Post("/api/auth/login").
		JSON(`{"email":"a@x.com","password":"wrong"}`).
		Expect(t).
		Status(http.StatusUnauthorized).
		Body(`{"error":"Invalid credentials"}`).
		End()

	apitest.Handler(api.handler).
		Post("/api/auth/login").
		JSON(`{"email":"nobody@x.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusNotFound).
		Body(`{"error":"User not found"}`).
		End()

	apitest.Handler(api.handler).
		Post("/api/auth/session").
		JSON(`{"email":"a@x.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.user.email", "a@x.com")).
		CookiePresent(authapi.DefaultCookieName).
		End()
}

func TestLoginThrottle(t *testing.T) {
	ctx := context.Background()
	api, cleanup := acquireAPI(ctx, t, throttle.New(1, 2))
	defer cleanup()

	apitest.Handler(api.handler).
		Post("/api/auth/login").
		JSON(`{"email":"nobody@x.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusNotFound).
		End()
	apitest.Handler(api.handler).
		Post("/api/auth/session").
		JSON(`{"email":"nobody@x.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusNotFound).
		End()
	apitest.Handler(api.handler).
		Post("/api/auth/login").
		JSON(`{"email":"nobody@x.com","password":"secret"}`).
		Expect(t).
		Status(http.StatusTooManyRequests).
		End()
}

func TestUnauthorized(t *testing.T) {
	ctx := context.Background()
	api, cleanup := acquireAPI(ctx, t, nil)
	defer cleanup()

	for _, req := range []*apitest.Request{
		apitest.Handler(api.handler).Post("/api/posts"),
		apitest.Handler(api.handler).Put("/api/posts"),
		apitest.Handler(api.handler).Delete("/api/posts"),
	} {
		req.JSON(`{"id":1,"title":"T"}`).
			Expect(t).
			Status(http.StatusUnauthorized).
			Body(`{"error":"Unauthorized"}`).
			End()
	}
	apitest.Handler(api.handler).
		Get("/api/auth/session").
		Expect(t).
		Status(http.StatusUnauthorized).
		End()
}

func TestForbidden(t *testing.T) {
	ctx := context.Background()
	api, cleanup := acquireAPI(ctx, t, nil)
	defer cleanup()
	testutil.SeedUser(ctx, t, api.store, "ana@x.com", "secret", nil)
	bob := testutil.SeedUser(ctx, t, api.store, "bob@x.com", "secret", nil)

	post, err := api.posts.CreatePost(ctx, "ana@x.com", blog.Draft{Title: "mine"})
	require.NoError(t, err)

	apitest.Handler(api.handler).
		Put("/api/posts").
		Header("Authorization", api.bearer(t, bob)).
		JSON(fmt.Sprintf(`{"id":%v,"title":"stolen"}`, post.ID)).
		Expect(t).
		Status(http.StatusForbidden).
		End()
	apitest.Handler(api.handler).
		Delete("/api/posts").
		Header("Authorization", api.bearer(t, bob)).
		JSON(fmt.Sprintf(`{"id":%v}`, post.ID)).
		Expect(t).
		Status(http.StatusForbidden).
		End()

	current, err := api.posts.Post(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post, current)

	apitest.Handler(api.handler).
		Delete("/api/posts").
		Header("Authorization", api.bearer(t, bob)).
		JSON(`{"id":404}`).
		Expect(t).
		Status(http.StatusNotFound).
		Body(`{"error":"Post not found"}`).
		End()
	apitest.Handler(api.handler).
		Put("/api/posts").
		Header("Authorization", api.bearer(t, bob)).
		JSON(fmt.Sprintf(`{"id":%v,"title":"  "}`, post.ID)).
		Expect(t).
		Status(http.StatusBadRequest).
		End()
	apitest.Handler(api.handler).
		Post("/api/posts").
		Header("Authorization", api.bearer(t, store.User{ID: 99, Email: "ghost@x.com"})).
		JSON(`{"title":"T"}`).
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func TestUpdateContent(t *testing.T) {
	ctx := context.Background()
	api, cleanup := acquireAPI(ctx, t, nil)
	defer cleanup()
	ana := testutil.SeedUser(ctx, t, api.store, "ana@x.com", "secret", nil)

	body := "keep me"
	post, err := api.posts.CreatePost(ctx, "ana@x.com", blog.Draft{Title: "T1", Content: &body})
	require.NoError(t, err)

	put := func(payload string) *apitest.Response {
		return apitest.Handler(api.handler).
			Put("/api/posts").
			Header("Authorization", api.bearer(t, ana)).
			JSON(payload).
			Expect(t)
	}

	put(fmt.Sprintf(`{"id":%v,"title":"T2"}`, post.ID)).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.title", "T2")).
		Assert(jsonpath.Equal("$.content", "keep me")).
		End()
	current, err := api.posts.Post(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, &body, current.Content)

	put(fmt.Sprintf(`{"id":%v,"title":"T3","content":"new body"}`, post.ID)).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.content", "new body")).
		End()

	put(fmt.Sprintf(`{"id":%v,"title":"T4","content":null}`, post.ID)).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.title", "T4")).
		End()
	current, err = api.posts.Post(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, current.Content)

	put(fmt.Sprintf(`{"id":%v,"title":"T5","content":5}`, post.ID)).
		Status(http.StatusBadRequest).
		End()
}

type failingUsers struct {
	UserStore
}

func (failingUsers) UserByID(ctx context.Context, id int64) (store.User, error) {
	return store.User{}, errors.New("database is locked")
}

func TestSessionStoreFailure(t *testing.T) {
	ctx := context.Background()
	api, cleanup := acquireAPI(ctx, t, nil)
	defer cleanup()
	ana := testutil.SeedUser(ctx, t, api.store, "ana@x.com", "secret", nil)

	denylist, err := auth.InMemoryDenylist(time.Hour)
	require.NoError(t, err)
	handler, err := AsHandler(ctx, Options{
		Posts: api.posts,
		Users: failingUsers{UserStore: api.store},
		Realm: authapi.NewRealm(api.issuer, denylist, "", true),
	})
	require.NoError(t, err)

	apitest.Handler(handler).
		Get("/api/auth/session").
		Header("Authorization", api.bearer(t, ana)).
		Expect(t).
		Status(http.StatusInternalServerError).
		Body(`{"error":"Something went wrong"}`).
		End()

	apitest.Handler(api.handler).
		Get("/api/auth/session").
		Header("Authorization", api.bearer(t, store.User{ID: 99, Email: "ghost@x.com"})).
		Expect(t).
		Status(http.StatusUnauthorized).
		Body(`{"error":"Unauthorized"}`).
		End()
}

func TestReadRoutes(t *testing.T) {
	ctx := context.Background()
	api, cleanup := acquireAPI(ctx, t, nil)
	defer cleanup()

	apitest.Handler(api.handler).
		Get("/api/posts").
		Expect(t).
		Status(http.StatusOK).
		Body(`[]`).
		End()

	testutil.SeedUser(ctx, t, api.store, "ana@x.com", "secret", nil)
	body := "**hello**"
	first, err := api.posts.CreatePost(ctx, "ana@x.com", blog.Draft{Title: "first", Content: &body})
	require.NoError(t, err)
	second, err := api.posts.CreatePost(ctx, "ana@x.com", blog.Draft{Title: "second"})
	require.NoError(t, err)

	apitest.Handler(api.handler).
		Get("/api/posts").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Len("$", 2)).
		Assert(jsonpath.Equal("$[0].id", float64(second.ID))).
		Assert(jsonpath.Equal("$[1].content", body)).
		Assert(jsonpath.Equal("$[1].user.email", "ana@x.com")).
		End()

	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/posts/%v", first.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "first", got["title"])
	assert.Equal(t, float64(first.UserID), got["userId"])
	assert.Contains(t, got, "createdAt")
	tag := rec.Header().Get("ETag")
	require.NotEmpty(t, tag)

	apitest.Handler(api.handler).
		Get(fmt.Sprintf("/api/posts/%v", first.ID)).
		Header("If-None-Match", tag).
		Expect(t).
		Status(http.StatusNotModified).
		End()
	apitest.Handler(api.handler).
		Get(fmt.Sprintf("/api/posts/%v", second.ID)).
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$.title", "second")).
		End()
	apitest.Handler(api.handler).
		Get("/api/posts/abc").
		Expect(t).
		Status(http.StatusBadRequest).
		Body(`{"error":"Invalid ID format"}`).
		End()
	apitest.Handler(api.handler).
		Get("/api/posts/999").
		Expect(t).
		Status(http.StatusNotFound).
		End()
}

func TestQueryHandler(t *testing.T) {
	ctx := context.Background()
	st, cleanup := testutil.AcquireStore(ctx, t, "query", func(ctx context.Context, c *sqlitestore.Control) error {
		testutil.SeedUser(ctx, t, c, "ana@x.com", "secret", nil)
		_, err := blog.New(c).CreatePost(ctx, "ana@x.com", blog.Draft{Title: "hello"})
		return err
	})
	defer cleanup()
	handler, err := AsQueryHandler(ctx, blog.New(st))
	if err != nil {
		t.Fatal(err)
	}
	apitest.Handler(handler).
		Get("/api/posts").
		Expect(t).
		Status(http.StatusOK).
		Assert(jsonpath.Equal("$[0].title", "hello")).
		End()
	apitest.Handler(handler).
		Post("/api/posts").
		JSON(`{"title":"nope"}`).
		Expect(t).
		Status(http.StatusMethodNotAllowed).
		End()
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	api, cleanup := acquireAPI(ctx, t, nil)
	defer cleanup()
	srv := httptest.NewServer(api.handler)
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	call := func(method, path string, body string, expected int) map[string]interface{} {
		req, err := http.NewRequest(method, srv.URL+path, bytes.NewBufferString(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		res, err := client.Do(req)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, expected, res.StatusCode, "%v %v", method, path)
		if res.StatusCode == http.StatusNoContent {
			return nil
		}
		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
		return out
	}

	call("POST", "/api/auth/register", `{"email":"a@x.com","password":"secret"}`, http.StatusOK)
	call("POST", "/api/auth/session", `{"email":"a@x.com","password":"secret"}`, http.StatusOK)
	session := call("GET", "/api/auth/session", "", http.StatusOK)
	assert.Equal(t, "a@x.com", session["user"].(map[string]interface{})["email"])

	created := call("POST", "/api/posts", `{"title":"T"}`, http.StatusCreated)
	assert.Equal(t, "a@x.com", created["user"].(map[string]interface{})["email"])
	assert.Nil(t, created["content"])
	id := int64(created["id"].(float64))

	updated := call("PUT", "/api/posts", fmt.Sprintf(`{"id":%v,"title":"T2"}`, id), http.StatusOK)
	assert.Equal(t, "T2", updated["title"])
	assert.Equal(t, created["createdAt"], updated["createdAt"])

	call("DELETE", "/api/posts", fmt.Sprintf(`{"id":%v}`, id), http.StatusNoContent)
	call("GET", fmt.Sprintf("/api/posts/%v", id), "", http.StatusNotFound)

	call("DELETE", "/api/auth/session", "", http.StatusNoContent)
	call("GET", "/api/auth/session", "", http.StatusUnauthorized)
	call("POST", "/api/posts", `{"title":"T"}`, http.StatusUnauthorized)
}
