// Package api binds session tokens to http requests.
package api

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/andrebq/postbox/auth"
	"github.com/andrebq/postbox/internal/httpjson"
	"github.com/andrebq/postbox/internal/logutil"
	"github.com/andrebq/postbox/store"
)

type (
	SecurityRealm struct {
		issuer         *auth.Issuer
		denylist       auth.Denylist
		cookieName     string
		insecureCookie bool
	}

	identityKey struct{}
)

const (
	DefaultCookieName = "postbox.session-token"
)

var (
	bearerTokenRE = regexp.MustCompile(`^Bearer ([^\s]+)$`)

	errNoToken = errors.New("request does not carry a session token")
)

func NewRealm(issuer *auth.Issuer, denylist auth.Denylist, cookieName string, allowHTTPCookie bool) *SecurityRealm {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &SecurityRealm{
		issuer:         issuer,
		denylist:       denylist,
		cookieName:     cookieName,
		insecureCookie: allowHTTPCookie,
	}
}

func (s *SecurityRealm) CookieName() string {
	return s.cookieName
}

// Protect rejects requests without a valid session, otherwise the
// identity is available to sensitive via IdentityFrom.
func (s *SecurityRealm) Protect(sensitive http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.Identify(r)
		if errors.As(err, &auth.InvalidSession{}) {
			httpjson.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		} else if err != nil {
			httpjson.Error(w, http.StatusInternalServerError, "Something went wrong")
			return
		}
		sensitive.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// Identify reads the session token from the cookie, or from a bearer
// Authorization header when the cookie is missing. Tokens that cannot be
// accepted are reported as auth.InvalidSession, any other error comes
// from the denylist.
func (s *SecurityRealm) Identify(r *http.Request) (auth.Identity, error) {
	ctx := r.Context()
	log := logutil.GetOrDefault(ctx)
	tk := s.token(r)
	if tk == "" {
		return auth.Identity{}, auth.InvalidSession{}
	}
	id, err := s.issuer.Verify(tk)
	if err != nil {
		log.Debug().Err(err).Msg("Rejected session token")
		return auth.Identity{}, err
	}
	revoked, err := s.denylist.Revoked(ctx, id.TokenID)
	if err != nil {
		log.Error().Err(err).Msg("Unexpected error when checking for token in the denylist")
		return auth.Identity{}, err
	} else if revoked {
		return auth.Identity{}, auth.InvalidSession{}
	}
	return id, nil
}

func (s *SecurityRealm) token(r *http.Request) string {
	if c, err := r.Cookie(s.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	groups := bearerTokenRE.FindStringSubmatch(r.Header.Get("Authorization"))
	if len(groups) == 0 {
		return ""
	}
	return groups[1]
}

// StartSession issues a token for u and sets it as the session cookie.
func (s *SecurityRealm) StartSession(w http.ResponseWriter, u store.User) (auth.Identity, error) {
	tk, id, err := s.issuer.Issue(u)
	if err != nil {
		return auth.Identity{}, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    tk,
		Path:     "/",
		Expires:  id.ExpiresAt,
		MaxAge:   int(s.issuer.TTL() / time.Second),
		HttpOnly: true,
		Secure:   !s.insecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// EndSession revokes the token carried by r, if any, and clears the
// session cookie. Clearing happens even when the token is invalid.
func (s *SecurityRealm) EndSession(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !s.insecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	tk := s.token(r)
	if tk == "" {
		return errNoToken
	}
	id, err := s.issuer.Verify(tk)
	if err != nil {
		return err
	}
	return s.denylist.Revoke(r.Context(), id.TokenID)
}

func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}
