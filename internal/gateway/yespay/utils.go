package yespay

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
)

// ErrBillNotFound means the backend has no transaction for the bill yet.
var ErrBillNotFound = errors.New("yespay: bill not found")

func randomNumber() (string, error) {
	min := big.NewInt(100000000000000000)
	max := big.NewInt(999999999999999999)
	n, err := rand.Int(rand.Reader, new(big.Int).Sub(max, min))
	if err != nil {
		return "", err
	}

	n.Add(n, min)
	return n.String(), nil
}

// Hmac256 is a function to generate HMAC256 hash.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifyHMAC checks a received signature against the expected HMAC of
// the body in constant time.
func VerifyHMAC(body []byte, receivedHMAC, key string) bool {
	expectedHMAC := Hmac256(body, []byte(key))
	return hmac.Equal([]byte(receivedHMAC), []byte(expectedHMAC))
}
