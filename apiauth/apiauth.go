// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package apiauth generates and validates the admin keys that authorize
// POST /contests/{id}/tabulate, adapted from the teacher's poll admin
// key scheme (auth/auth.go) to contests.
package apiauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidAdminKey = errors.New("invalid admin key")
	ErrInvalidToken    = errors.New("invalid token format")
)

// GenerateID creates a random hex ID of the specified byte length, used
// for run IDs when the caller does not want a UUID.
func GenerateID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateAdminKey creates an HMAC-based admin key for a contest. It is
// deterministic given (contestID, salt) and verifiable without a lookup.
func GenerateAdminKey(contestID, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(contestID))
	sum := h.Sum(nil)
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// ValidateAdminKey checks whether adminKey authorizes operations on
// contestID.
func ValidateAdminKey(contestID, adminKey, salt string) error {
	expected := GenerateAdminKey(contestID, salt)
	if !hmac.Equal([]byte(adminKey), []byte(expected)) {
		return ErrInvalidAdminKey
	}
	return nil
}

// GenerateRunToken creates a random secure token identifying one
// tabulation run, used as a bearer credential for cancelling an
// in-progress run.
func GenerateRunToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate run token: %w", err)
	}
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "="), nil
}

// GenerateShareSlug creates a short, deterministic URL slug for a
// contest's public results page.
func GenerateShareSlug(contestID, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(contestID))
	sum := h.Sum(nil)
	return base62Encode(sum[:8])
}

func base62Encode(data []byte) string {
	const base62Chars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

	var num uint64
	for i := 0; i < len(data) && i < 8; i++ {
		num = num<<8 | uint64(data[i])
	}

	if num == 0 {
		return "0"
	}

	result := make([]byte, 0, 11)
	for num > 0 {
		result = append(result, base62Chars[num%62])
		num /= 62
	}

	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	return string(result)
}

// HashRequesterIP creates a one-way hash of a caller's IP address for the
// audit log, salted to prevent rainbow table lookups.
func HashRequesterIP(ip, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(ip))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
