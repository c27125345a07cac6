package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type (
	PlainText []byte
)

const (
	// PasswordCost is the bcrypt work factor used for every new password.
	PasswordCost = 10
)

func (p PlainText) Zero() {
	for i := range p {
		p[i] = 0
	}
}

func HashPassword(passwd PlainText) (string, error) {
	buf, err := bcrypt.GenerateFromPassword(passwd, PasswordCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", InvalidInput{Reason: "password is too long"}
	} else if err != nil {
		return "", fmt.Errorf("unable to hash password, cause %w", err)
	}
	return string(buf), nil
}

func CheckPassword(hash string, passwd PlainText) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), passwd)
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return InvalidCredential{}
	} else if err != nil {
		return fmt.Errorf("unable to verify password, cause %w", err)
	}
	return nil
}
