// Package test provides helpers for generating test fixtures. Do not import
// it from non-test code.
package test

import (
	"crypto/rand"
	"math"
	"math/big"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString returns a random alphanumeric string of length 10.
func RandomString() string {
	return RandomStringWithLen(10)
}

// RandomStringWithLen returns a random alphanumeric string of the given length.
func RandomStringWithLen(length int) string {
	b := make([]byte, length)
	for i := range b {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(alphanumeric))))
		b[i] = alphanumeric[n.Int64()]
	}
	return string(b)
}

// RandomInt returns a random positive int up to math.MaxInt32.
func RandomInt() int {
	n, _ := rand.Int(rand.Reader, big.NewInt(math.MaxInt32))
	if n.Int64() == 0 {
		return 1
	}
	return int(n.Int64())
}

// RandomNonZeroInt returns a random int in [1, max].
func RandomNonZeroInt(max int) int {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(max)-1))
	return int(n.Int64() + 1)
}
