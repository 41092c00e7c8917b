// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlefleet Contributors

// Package totp generates two-factor guard codes from an account's shared
// secret.
package totp

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // the guard algorithm is defined over HMAC-SHA1
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Guard code parameters.
const (
	Period     = 30 * time.Second
	CodeLength = 5
	alphabet   = "23456789BCDFGHJKMNPQRTVWXY"
)

// GenerateAuthCode returns the guard code valid at the given instant.
// sharedSecret may be base64 or 40-character hex encoded.
func GenerateAuthCode(sharedSecret string, at time.Time) (string, error) {
	secret, err := decodeSecret(sharedSecret)
	if err != nil {
		return "", err
	}

	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], uint64(at.Unix()/int64(Period/time.Second)))

	mac := hmac.New(sha1.New, secret)
	mac.Write(counter[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	full := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	code := make([]byte, CodeLength)
	for i := range code {
		code[i] = alphabet[full%uint32(len(alphabet))]
		full /= uint32(len(alphabet))
	}
	return string(code), nil
}

// Now returns the guard code valid at the current time.
func Now(sharedSecret string) (string, error) {
	return GenerateAuthCode(sharedSecret, time.Now())
}

func decodeSecret(s string) ([]byte, error) {
	if s == "" {
		return nil, oops.Code("TOTP_EMPTY_SECRET").Errorf("shared secret is empty")
	}
	if len(s) == 40 {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, oops.Code("TOTP_INVALID_SECRET").Wrapf(err, "shared secret is neither base64 nor hex")
	}
	return b, nil
}
