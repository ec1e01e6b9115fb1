package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// TokenID identifies a refresh token record. The string form is compact
// base64url so it can travel inside the opaque refresh token.
type TokenID [16]byte

const (
	refreshTokenRawSize = 48
	refreshSecretSize   = 32
)

var ErrMalformedToken = errors.New("malformed refresh token")

func NewTokenID() (TokenID, error) {
	var id TokenID
	_, err := rand.Read(id[:])
	return id, err
}

func (id TokenID) Bytes() []byte {
	return id[:]
}

func (id TokenID) String() string {
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func ParseTokenID(tokenID string) (TokenID, error) {
	var id TokenID

	raw, err := base64.RawURLEncoding.DecodeString(tokenID)
	if err != nil {
		return id, ErrMalformedToken
	}
	if len(raw) != len(id) {
		return id, ErrMalformedToken
	}

	copy(id[:], raw)
	return id, nil
}

func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashRefreshSecret is the digest stored server side. The raw secret is
// never persisted.
func HashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeRefreshToken packs id and secret into one opaque base64url blob.
func EncodeRefreshToken(tokenID string, secret [refreshSecretSize]byte) (string, error) {
	id, err := ParseTokenID(tokenID)
	if err != nil {
		return "", err
	}

	var raw [refreshTokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func DecodeRefreshToken(token string) (string, [refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, ErrMalformedToken
	}
	if len(raw) != refreshTokenRawSize {
		return "", secret, ErrMalformedToken
	}

	var id TokenID
	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])

	return id.String(), secret, nil
}
