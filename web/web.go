// Package web renders the blog as html pages, the pages call the json
// api from static/app.js for every change.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andrebq/postbox/blog"
	"github.com/andrebq/postbox/internal/etag"
	"github.com/andrebq/postbox/internal/logutil"
	"github.com/andrebq/postbox/store"
	"github.com/julienschmidt/httprouter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type (
	views struct {
		posts *blog.Service
		pages *template.Template
		md    goldmark.Markdown
	}

	listPage struct {
		Posts []store.Post
	}

	postPage struct {
		Post store.Post
	}

	notFoundPage struct {
		Message string
	}
)

const (
	htmlContentType = "text/html; charset=utf-8"
	excerptLen      = 100
)

var (
	//go:embed templates/*.html
	templateFS embed.FS

	//go:embed static
	staticFS embed.FS
)

// AsHandler serves the html pages and their static assets, all routes
// are read-only.
func AsHandler(ctx context.Context, posts *blog.Service) (http.Handler, error) {
	if posts == nil {
		return nil, errors.New("views require a post service")
	}
	v := &views{
		posts: posts,
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
	pages, err := template.New("pages").Funcs(template.FuncMap{
		"markdown": v.markdown,
		"author":   DisplayName,
		"excerpt":  excerpt,
		"deref":    deref,
		"datetime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
		"iso":      func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	v.pages = pages

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}

	router := httprouter.New()
	router.HandlerFunc("GET", "/", v.index)
	router.HandlerFunc("GET", "/post/:id", v.post)
	router.ServeFiles("/static/*filepath", http.FS(static))
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v.render(w, r, http.StatusNotFound, "notfound.html", notFoundPage{Message: "Page not found"})
	})
	return router, nil
}

func (v *views) index(w http.ResponseWriter, r *http.Request) {
	posts, err := v.posts.ListPosts(r.Context())
	if err != nil {
		v.fail(w, r, err)
		return
	}
	v.render(w, r, http.StatusOK, "index.html", listPage{Posts: posts})
}

func (v *views) post(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(httprouter.ParamsFromContext(r.Context()).ByName("id"), 10, 64)
	if err != nil {
		v.render(w, r, http.StatusNotFound, "notfound.html", notFoundPage{Message: "Post not found"})
		return
	}
	post, err := v.posts.Post(r.Context(), id)
	if errors.As(err, &store.NotFound{}) {
		v.render(w, r, http.StatusNotFound, "notfound.html", notFoundPage{Message: "Post not found"})
		return
	} else if err != nil {
		v.fail(w, r, err)
		return
	}
	v.render(w, r, http.StatusOK, "post.html", postPage{Post: post})
}

func (v *views) render(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := v.pages.ExecuteTemplate(&buf, name, data); err != nil {
		v.fail(w, r, err)
		return
	}
	etag.Write(w, r, status, htmlContentType, buf.Bytes())
}

func (v *views) fail(w http.ResponseWriter, r *http.Request, err error) {
	log := logutil.GetOrDefault(r.Context())
	log.Error().Err(err).Str("path", r.URL.Path).Msg("Unable to render page")
	http.Error(w, "Something went wrong", http.StatusInternalServerError)
}

func (v *views) markdown(content *string) (template.HTML, error) {
	if content == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := v.md.Convert([]byte(*content), &buf); err != nil {
		return "", err
	}
	// goldmark drops raw html unless html.WithUnsafe is set
	return template.HTML(buf.String()), nil
}

// DisplayName is the author name shown next to a post.
func DisplayName(a store.Author) string {
	if a.Name == nil || strings.TrimSpace(*a.Name) == "" {
		return "Unnamed"
	}
	return *a.Name
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func excerpt(content *string) string {
	if content == nil || *content == "" {
		return "No content"
	}
	if utf8.RuneCountInString(*content) <= excerptLen {
		return *content
	}
	runes := []rune(*content)
	return string(runes[:excerptLen]) + "..."
}
