package auth

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// sessionKeys are the independent secrets derived from the configured
// session key: cookie HMAC, cookie encryption and token signing.
type sessionKeys struct {
	hash  []byte // 64 bytes, securecookie HMAC-SHA256
	block []byte // 32 bytes, securecookie AES-256
	token []byte // 32 bytes, HS256
}

const keySalt = "stratabook-session-v1"

func deriveKeys(secret string) (sessionKeys, error) {
	read := func(info string, n int) ([]byte, error) {
		out := make([]byte, n)
		r := hkdf.New(sha256.New, []byte(secret), []byte(keySalt), []byte(info))
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, err
		}
		return out, nil
	}

	var k sessionKeys
	var err error
	if k.hash, err = read("cookie-hash", 64); err != nil {
		return k, err
	}
	if k.block, err = read("cookie-block", 32); err != nil {
		return k, err
	}
	if k.token, err = read("session-token", 32); err != nil {
		return k, err
	}
	return k, nil
}
