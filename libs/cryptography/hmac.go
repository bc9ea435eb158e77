// Package cryptography wraps the mac primitives used to sign and verify
// webhook payloads.
package cryptography

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
)

// HMACKey computes an hmac-sha384 over a payload. The in process
// implementation keys off a shared secret, remote signers can stand in
// behind the same interface.
type HMACKey interface {
	HMACSha384(payload []byte) ([]byte, error)
}

// HMACHasher is the in process HMACKey implementation.
type HMACHasher struct {
	secret []byte
}

// NewHMACHasher returns an HMACKey hashing with the given secret.
func NewHMACHasher(secret []byte) HMACKey {
	return &HMACHasher{secret: secret}
}

// HMACSha384 hashes payload with the in process secret.
func (hmh *HMACHasher) HMACSha384(payload []byte) ([]byte, error) {
	mac := hmac.New(sha512.New384, hmh.secret)
	n, err := mac.Write(payload)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New("no bytes written in HMACSha384 Hash")
	}
	return mac.Sum(nil), nil
}

// HMACSha384Hex returns the hex encoding of the hmac-sha384 of payload.
func HMACSha384Hex(key HMACKey, payload []byte) (string, error) {
	b, err := key.HMACSha384(payload)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HMACEqual compares two mac values in constant time.
func HMACEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
