// Package auth registers users, checks their credentials and issues
// the session tokens used to authenticate http requests.
//
// Passwords are hashed with bcrypt using a fixed cost, the plain text
// is never stored and never returned to callers.
//
// Sessions are stateless: a session is an HS256 signed token carrying
// the user id and email, valid until its expiration. Nothing is kept
// on the server for a valid session, every request verifies the
// signature again.
//
// The signing key is derived from a secret read once from the
// environment (which is then cleared), so every process started with
// the same secret accepts the same tokens.
//
// Signing out is the only case where the server remembers anything:
// the token id goes to a Denylist until the token would have expired
// anyway. Losing the denylist (eg.: a restart) makes signed out tokens
// valid again until they expire.
package auth
