package main

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

const testSharedSecret = "dGhpcyBpcyBhIHNoYXJlZCBzZWNyZXQ="

func TestGenerateAuthCode(t *testing.T) {
	at := time.Unix(1500000000, 0)

	code, err := GenerateAuthCode(testSharedSecret, at)
	if err != nil {
		t.Fatalf("GenerateAuthCode failed: %v", err)
	}
	if len(code) != 5 {
		t.Fatalf("code %q has length %d, want 5", code, len(code))
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(string(steamGuardChars), rune(code[i])) {
			t.Fatalf("code %q contains character %c outside the alphabet", code, code[i])
		}
	}

	// Deterministic for a given time, stable within the 30 second window
	again, err := GenerateAuthCode(testSharedSecret, at)
	if err != nil {
		t.Fatalf("GenerateAuthCode failed: %v", err)
	}
	if code != again {
		t.Fatalf("codes for the same instant differ: %q vs %q", code, again)
	}
	sameWindow, err := GenerateAuthCode(testSharedSecret, at.Add(10*time.Second))
	if err != nil {
		t.Fatalf("GenerateAuthCode failed: %v", err)
	}
	if code != sameWindow {
		t.Fatalf("codes within one window differ: %q vs %q", code, sameWindow)
	}

	nextWindow, err := GenerateAuthCode(testSharedSecret, at.Add(30*time.Second))
	if err != nil {
		t.Fatalf("GenerateAuthCode failed: %v", err)
	}
	if code == nextWindow {
		t.Fatalf("codes for adjacent windows are identical: %q", code)
	}
}

func TestGenerateAuthCodeRejectsBadSecret(t *testing.T) {
	if _, err := GenerateAuthCode("not base64 !!!", time.Now()); err == nil {
		t.Fatalf("invalid secret accepted")
	}
}

func TestGenerateConfirmationKey(t *testing.T) {
	at := time.Unix(1500000000, 0)

	key, err := GenerateConfirmationKey(testSharedSecret, at, "conf")
	if err != nil {
		t.Fatalf("GenerateConfirmationKey failed: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		t.Fatalf("key %q is not valid base64: %v", key, err)
	}
	if len(raw) != 20 {
		t.Fatalf("key decodes to %d bytes, want 20 (SHA-1)", len(raw))
	}

	// Different tags must produce different acknowledgments
	other, err := GenerateConfirmationKey(testSharedSecret, at, "allow")
	if err != nil {
		t.Fatalf("GenerateConfirmationKey failed: %v", err)
	}
	if key == other {
		t.Fatalf("keys for different tags are identical")
	}
}

func TestDeriveDeviceID(t *testing.T) {
	const steamID = uint64(76561198000000001)

	id := DeriveDeviceID(steamID)
	if !strings.HasPrefix(id, "android:") {
		t.Fatalf("device id %q missing android prefix", id)
	}
	if len(id) != len("android:")+36 {
		t.Fatalf("device id %q has unexpected length", id)
	}

	if again := DeriveDeviceID(steamID); id != again {
		t.Fatalf("device id is not stable: %q vs %q", id, again)
	}
	if other := DeriveDeviceID(steamID + 1); id == other {
		t.Fatalf("different accounts derived the same device id")
	}
}
