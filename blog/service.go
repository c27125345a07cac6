package blog

import (
	"context"
	"strings"
	"time"

	"github.com/andrebq/postbox/store"
)

type (
	Store interface {
		UserByEmail(ctx context.Context, email string) (store.User, error)
		CreatePost(ctx context.Context, p store.NewPost) (store.Post, error)
		ListPosts(ctx context.Context) ([]store.Post, error)
		PostByID(ctx context.Context, id int64) (store.Post, error)
		UpdatePost(ctx context.Context, id int64, e store.PostEdit) (store.Post, error)
		DeletePost(ctx context.Context, id int64) error
	}

	Service struct {
		store Store
		now   func() time.Time
	}

	Draft struct {
		Title   string
		Content *string
	}

	// Edit keeps the stored content unless ContentSet is true.
	Edit struct {
		ID         int64
		Title      string
		Content    *string
		ContentSet bool
	}
)

func New(s Store) *Service {
	return &Service{store: s, now: time.Now}
}

// WithClock replaces the time source used to stamp new posts.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) ListPosts(ctx context.Context) ([]store.Post, error) {
	return s.store.ListPosts(ctx)
}

func (s *Service) Post(ctx context.Context, id int64) (store.Post, error) {
	return s.store.PostByID(ctx, id)
}

// CreatePost stores d as a post authored by the user with actorEmail.
func (s *Service) CreatePost(ctx context.Context, actorEmail string, d Draft) (store.Post, error) {
	if actorEmail == "" {
		return store.Post{}, Unauthorized{}
	}
	if strings.TrimSpace(d.Title) == "" {
		return store.Post{}, BadRequest{Reason: "Title is required"}
	}
	author, err := s.store.UserByEmail(ctx, actorEmail)
	if err != nil {
		return store.Post{}, err
	}
	return s.store.CreatePost(ctx, store.NewPost{
		Title:     d.Title,
		Content:   d.Content,
		UserID:    author.ID,
		CreatedAt: s.now().UTC(),
	})
}

// UpdatePost replaces the title of e.ID, and its content when e.ContentSet.
// The post is left untouched unless actorEmail belongs to its author.
func (s *Service) UpdatePost(ctx context.Context, actorEmail string, e Edit) (store.Post, error) {
	if actorEmail == "" {
		return store.Post{}, Unauthorized{}
	}
	if e.ID <= 0 || strings.TrimSpace(e.Title) == "" {
		return store.Post{}, BadRequest{Reason: "ID and title are required"}
	}
	if _, err := s.authorize(ctx, actorEmail, e.ID); err != nil {
		return store.Post{}, err
	}
	return s.store.UpdatePost(ctx, e.ID, store.PostEdit{Title: e.Title, Content: e.Content, ContentSet: e.ContentSet})
}

// DeletePost removes id permanently, with the same ownership rule as
// UpdatePost.
func (s *Service) DeletePost(ctx context.Context, actorEmail string, id int64) error {
	if actorEmail == "" {
		return Unauthorized{}
	}
	if id <= 0 {
		return BadRequest{Reason: "ID is required"}
	}
	if _, err := s.authorize(ctx, actorEmail, id); err != nil {
		return err
	}
	return s.store.DeletePost(ctx, id)
}

func (s *Service) authorize(ctx context.Context, actorEmail string, postID int64) (store.Post, error) {
	post, err := s.store.PostByID(ctx, postID)
	if err != nil {
		return store.Post{}, err
	}
	actor, err := s.store.UserByEmail(ctx, actorEmail)
	if err != nil {
		return store.Post{}, err
	}
	if post.UserID != actor.ID {
		return store.Post{}, Forbidden{PostID: post.ID, UserID: actor.ID}
	}
	return post, nil
}
