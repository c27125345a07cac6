package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	authapi "github.com/andrebq/postbox/auth/api"
	"github.com/andrebq/postbox/blog"
	"github.com/andrebq/postbox/internal/etag"
	"github.com/andrebq/postbox/internal/httpjson"
	"github.com/julienschmidt/httprouter"
)

type (
	reader struct {
		posts *blog.Service
	}

	writer struct {
		posts *blog.Service
	}

	createRequest struct {
		Title   string  `json:"title"`
		Content *string `json:"content"`
	}

	updateRequest struct {
		ID      int64          `json:"id"`
		Title   string         `json:"title"`
		Content optionalString `json:"content"`
	}

	// optionalString tells a missing key apart from an explicit null.
	optionalString struct {
		Set   bool
		Value *string
	}

	deleteRequest struct {
		ID int64 `json:"id"`
	}
)

const jsonContentType = "application/json; charset=utf-8"

func (rd *reader) list(w http.ResponseWriter, r *http.Request) {
	posts, err := rd.posts.ListPosts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]postJSON, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostJSON(p))
	}
	writeCached(w, r, out)
}

func (rd *reader) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(httprouter.ParamsFromContext(r.Context()).ByName("id"), 10, 64)
	if err != nil {
		httpjson.Error(w, http.StatusBadRequest, "Invalid ID format")
		return
	}
	post, err := rd.posts.Post(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, toPostJSON(post))
}

func writeCached(w http.ResponseWriter, r *http.Request, v interface{}) {
	buf, err := httpjson.Marshal(v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	etag.Write(w, r, http.StatusOK, jsonContentType, buf)
}

func (wr *writer) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	post, err := wr.posts.CreatePost(r.Context(), actor(r), blog.Draft{Title: req.Title, Content: req.Content})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, toPostJSON(post))
}

func (wr *writer) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	post, err := wr.posts.UpdatePost(r.Context(), actor(r), blog.Edit{
		ID:         req.ID,
		Title:      req.Title,
		Content:    req.Content.Value,
		ContentSet: req.Content.Set,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpjson.Write(w, http.StatusOK, toPostJSON(post))
}

func (wr *writer) delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := httpjson.Decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := wr.posts.DeletePost(r.Context(), actor(r), req.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (o *optionalString) UnmarshalJSON(buf []byte) error {
	o.Set = true
	o.Value = nil
	if string(buf) == "null" {
		return nil
	}
	var v string
	if err := json.Unmarshal(buf, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func actor(r *http.Request) string {
	id, ok := authapi.IdentityFrom(r.Context())
	if !ok {
		return ""
	}
	return id.Email
}
