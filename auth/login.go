package auth

import (
	"context"
	"strings"

	"github.com/andrebq/postbox/store"
)

// Login returns the user identified by email if passwd matches, passwd
// is zeroed before returning.
//
// Unknown emails (or users without a password) are store.NotFound,
// a wrong password is InvalidCredential.
func Login(ctx context.Context, users UserStore, email string, passwd PlainText) (store.User, error) {
	defer passwd.Zero()
	email = strings.TrimSpace(email)
	if email == "" || len(passwd) == 0 {
		return store.User{}, InvalidInput{Reason: "Email and password are required"}
	}
	u, err := users.UserByEmail(ctx, email)
	if err != nil {
		return store.User{}, err
	}
	if u.PasswordHash == "" {
		return store.User{}, store.NotFound{Kind: "user", Key: u.Email}
	}
	if err := CheckPassword(u.PasswordHash, passwd); err != nil {
		return store.User{}, err
	}
	return u, nil
}
