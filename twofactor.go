package main

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Steam Guard codes use a 26-character alphabet, not the RFC 6238 digits
var steamGuardChars = []byte("23456789BCDFGHJKMNPQRTVWXY")

// GenerateAuthCode derives the 5-character Steam Guard code for the given
// time from base64-encoded shared-secret material.
func GenerateAuthCode(sharedSecret string, t time.Time) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(sharedSecret)
	if err != nil {
		return "", fmt.Errorf("invalid shared secret: %v", err)
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.Unix()/30))

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	start := sum[19] & 0x0F
	code := binary.BigEndian.Uint32(sum[start:start+4]) & 0x7FFFFFFF

	out := make([]byte, 5)
	for i := range out {
		out[i] = steamGuardChars[code%uint32(len(steamGuardChars))]
		code /= uint32(len(steamGuardChars))
	}
	return string(out), nil
}

// GenerateConfirmationKey derives the base64 confirmation acknowledgment for
// the given time and tag ("conf", "allow", "cancel", "details") from
// base64-encoded identity-secret material.
func GenerateConfirmationKey(identitySecret string, t time.Time, tag string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(identitySecret)
	if err != nil {
		return "", fmt.Errorf("invalid identity secret: %v", err)
	}

	buf := make([]byte, 8, 8+len(tag))
	binary.BigEndian.PutUint64(buf, uint64(t.Unix()))
	buf = append(buf, tag...)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// DeriveDeviceID builds the stable mobile device identifier presented to the
// confirmation service, derived from the account's SteamID64.
func DeriveDeviceID(steamID uint64) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d", steamID)))
	return "android:" + id.String()
}
