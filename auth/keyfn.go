package auth

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
)

type (
	Key [32]byte
)

const (
	SecretEnvVar = "POSTBOX_SESSION_SECRET"
)

var (
	keySalt = []byte("postbox/session-signing-key")
)

func (k *Key) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// KeyFromEnv reads the session secret from varname and removes it from
// the environment, so child processes never see it.
func KeyFromEnv(varname string, getfn func(string) string, setfn func(string, string) error) (*Key, error) {
	if getfn == nil {
		getfn = os.Getenv
	}
	if setfn == nil {
		setfn = os.Setenv
	}
	val := getfn(varname)
	setfn(varname, "")
	if len(val) == 0 {
		return nil, fmt.Errorf("auth: environment variable %v is empty, a session secret is required", varname)
	}
	secret := PlainText(val)
	defer secret.Zero()
	return DeriveKey(secret)
}

// DeriveKey stretches secret into a signing key. The result only
// depends on secret, processes sharing a secret share the key.
func DeriveKey(secret PlainText) (*Key, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: cannot derive a key from an empty secret")
	}
	var k Key
	// 7 passes over 10 MB, threads must stay constant or the key changes
	buf := argon2.IDKey(secret, keySalt, 7, 10*1024, 4, uint32(len(k)))
	copy(k[:], buf)
	return &k, nil
}
