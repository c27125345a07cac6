// Package store holds the records shared by every storage backend.
package store

import (
	"strings"
	"time"
)

type (
	User struct {
		ID           int64
		Email        string
		PasswordHash string
		Name         *string
	}

	NewUser struct {
		Email        string
		PasswordHash string
		Name         *string
	}

	Author struct {
		Name  *string
		Email string
	}

	Post struct {
		ID        int64
		Title     string
		Content   *string
		UserID    int64
		CreatedAt time.Time
		Author    Author
	}

	NewPost struct {
		Title     string
		Content   *string
		UserID    int64
		CreatedAt time.Time
	}

	// PostEdit changes the title of a post. Content is only written when
	// ContentSet is true, a nil Content then clears it.
	PostEdit struct {
		Title      string
		Content    *string
		ContentSet bool
	}
)

// NormalizeEmail is applied by every backend before an email
// is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
