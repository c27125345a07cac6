package auth

import (
	"context"
	"strings"

	"github.com/andrebq/postbox/store"
)

type (
	UserStore interface {
		CreateUser(ctx context.Context, u store.NewUser) (store.User, error)
		UserByEmail(ctx context.Context, email string) (store.User, error)
	}
)

// Register creates a new user, passwd is zeroed before returning.
//
// A duplicated email is reported by the store as a store.Conflict.
func Register(ctx context.Context, users UserStore, email string, passwd PlainText, name *string) (store.User, error) {
	defer passwd.Zero()
	email = strings.TrimSpace(email)
	if email == "" || len(passwd) == 0 {
		return store.User{}, InvalidInput{Reason: "Missing email or password"}
	}
	hash, err := HashPassword(passwd)
	if err != nil {
		return store.User{}, err
	}
	if name != nil && strings.TrimSpace(*name) == "" {
		name = nil
	}
	return users.CreateUser(ctx, store.NewUser{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
	})
}
