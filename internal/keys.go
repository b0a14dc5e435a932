package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	cookieHashKeySize  = 64
	cookieBlockKeySize = 32
)

// CookieKeys are the securecookie signing and encryption keys.
type CookieKeys struct {
	Hash  []byte
	Block []byte
}

// DeriveCookieKeys stretches secret into independent HMAC and AES keys with
// HKDF-SHA256. The same secret always yields the same keys.
func DeriveCookieKeys(secret []byte) (CookieKeys, error) {
	if len(secret) == 0 {
		return CookieKeys{}, errors.New("empty session secret")
	}

	hashKey, err := expand(secret, "chama.sid hmac", cookieHashKeySize)
	if err != nil {
		return CookieKeys{}, err
	}
	blockKey, err := expand(secret, "chama.sid aes", cookieBlockKeySize)
	if err != nil {
		return CookieKeys{}, err
	}

	return CookieKeys{Hash: hashKey, Block: blockKey}, nil
}

func expand(secret []byte, info string, n int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RandomSecret returns n random bytes, base64url encoded. Development servers
// use it when no session secret is configured, so cookies do not survive a
// restart.
func RandomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
