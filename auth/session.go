package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/andrebq/postbox/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type (
	Issuer struct {
		key *Key
		ttl time.Duration
		now func() time.Time
	}

	Claims struct {
		Email string `json:"email"`
		jwt.RegisteredClaims
	}

	// Identity is what a verified session token says about its bearer.
	Identity struct {
		UserID    int64
		Email     string
		TokenID   string
		ExpiresAt time.Time
	}
)

const (
	issuerName = "postbox"

	DefaultSessionTTL = 30 * 24 * time.Hour
)

func NewIssuer(key *Key, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Issuer{key: key, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source used to issue and verify tokens.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (i *Issuer) Issue(u store.User) (string, Identity, error) {
	now := i.now()
	id := Identity{
		UserID:    u.ID,
		Email:     u.Email,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(i.ttl).Truncate(time.Second).UTC(),
	}
	claims := Claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   strconv.FormatInt(id.UserID, 10),
			ID:        id.TokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(id.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key[:])
	if err != nil {
		return "", Identity{}, err
	}
	return token, id, nil
}

func (i *Issuer) Verify(token string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return i.key[:], nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now))
	if err != nil {
		return Identity{}, InvalidSession{cause: err}
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Identity{}, InvalidSession{cause: err}
	}
	if claims.Email == "" || claims.ID == "" {
		return Identity{}, InvalidSession{cause: errors.New("token without email or id")}
	}
	return Identity{
		UserID:    uid,
		Email:     claims.Email,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}
