// Package api exposes the blog and its accounts over JSON.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/andrebq/postbox/auth"
	authapi "github.com/andrebq/postbox/auth/api"
	"github.com/andrebq/postbox/blog"
	"github.com/andrebq/postbox/internal/httpjson"
	"github.com/andrebq/postbox/internal/logutil"
	"github.com/andrebq/postbox/internal/throttle"
	"github.com/andrebq/postbox/store"
	"github.com/julienschmidt/httprouter"
)

type (
	UserStore interface {
		auth.UserStore
		UserByID(ctx context.Context, id int64) (store.User, error)
	}

	Options struct {
		Posts    *blog.Service
		Users    UserStore
		Realm    *authapi.SecurityRealm
		Throttle *throttle.Limiter
	}

	userJSON struct {
		ID    int64   `json:"id"`
		Email string  `json:"email"`
		Name  *string `json:"name"`
	}

	authorJSON struct {
		Name  *string `json:"name"`
		Email string  `json:"email"`
	}

	postJSON struct {
		ID        int64      `json:"id"`
		Title     string     `json:"title"`
		Content   *string    `json:"content"`
		CreatedAt time.Time  `json:"createdAt"`
		UserID    int64      `json:"userId"`
		User      authorJSON `json:"user"`
	}
)

// AsHandler serves every /api route, reads and writes.
func AsHandler(ctx context.Context, opts Options) (http.Handler, error) {
	if opts.Posts == nil || opts.Users == nil || opts.Realm == nil {
		return nil, errors.New("api handler requires posts, users and a security realm")
	}
	if opts.Throttle == nil {
		opts.Throttle = throttle.New(0, 0)
	}
	router := newRouter()
	routePosts(router, opts.Posts)

	a := &accounts{users: opts.Users, realm: opts.Realm}
	router.HandlerFunc("POST", "/api/auth/register", a.register)
	router.Handler("POST", "/api/auth/login", opts.Throttle.Middleware(http.HandlerFunc(a.login)))
	router.Handler("POST", "/api/auth/session", opts.Throttle.Middleware(http.HandlerFunc(a.signIn)))
	router.HandlerFunc("GET", "/api/auth/session", a.session)
	router.HandlerFunc("DELETE", "/api/auth/session", a.signOut)

	w := &writer{posts: opts.Posts}
	router.Handler("POST", "/api/posts", opts.Realm.Protect(http.HandlerFunc(w.create)))
	router.Handler("PUT", "/api/posts", opts.Realm.Protect(http.HandlerFunc(w.update)))
	router.Handler("DELETE", "/api/posts", opts.Realm.Protect(http.HandlerFunc(w.delete)))
	return router, nil
}

// AsQueryHandler serves only the read routes, it is safe to back it
// with a read-only store.
func AsQueryHandler(ctx context.Context, posts *blog.Service) (http.Handler, error) {
	if posts == nil {
		return nil, errors.New("query handler requires a post service")
	}
	router := newRouter()
	routePosts(router, posts)
	return router, nil
}

func newRouter() *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpjson.Error(w, http.StatusNotFound, "Not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpjson.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v interface{}) {
		log := logutil.GetOrDefault(r.Context())
		log.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("Handler panic")
		httpjson.Error(w, http.StatusInternalServerError, "Something went wrong")
	}
	return router
}

func routePosts(router *httprouter.Router, posts *blog.Service) {
	r := &reader{posts: posts}
	router.HandlerFunc("GET", "/api/posts", r.list)
	router.HandlerFunc("GET", "/api/posts/:id", r.get)
}

// writeError maps domain errors to status codes, anything unexpected
// is logged and hidden behind a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = http.StatusInternalServerError
		msg    = "Something went wrong"
	)
	switch {
	case errors.As(err, &blog.BadRequest{}), errors.As(err, &auth.InvalidInput{}), errors.As(err, &httpjson.DecodeError{}):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.As(err, &blog.Unauthorized{}), errors.As(err, &auth.InvalidSession{}):
		status, msg = http.StatusUnauthorized, "Unauthorized"
	case errors.As(err, &auth.InvalidCredential{}):
		status, msg = http.StatusUnauthorized, "Invalid credentials"
	case errors.As(err, &blog.Forbidden{}):
		status, msg = http.StatusForbidden, "Forbidden"
	case errors.As(err, &store.NotFound{}):
		var nf store.NotFound
		errors.As(err, &nf)
		status, msg = http.StatusNotFound, notFoundMessage(nf)
	case errors.As(err, &store.Conflict{}):
		status, msg = http.StatusConflict, "Email already registered"
	default:
		log := logutil.GetOrDefault(r.Context())
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Unexpected error")
	}
	httpjson.Error(w, status, msg)
}

func notFoundMessage(nf store.NotFound) string {
	switch nf.Kind {
	case "user":
		return "User not found"
	case "post":
		return "Post not found"
	}
	return "Not found"
}

func toUserJSON(u store.User) userJSON {
	return userJSON{ID: u.ID, Email: u.Email, Name: u.Name}
}

func toPostJSON(p store.Post) postJSON {
	return postJSON{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
		UserID:    p.UserID,
		User: authorJSON{
			Name:  p.Author.Name,
			Email: p.Author.Email,
		},
	}
}
