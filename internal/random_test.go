package internal

import (
	"strings"
	"testing"
)

func TestHandleRoundTrip(t *testing.T) {
	h, err := NewHandle()
	if err != nil {
		t.Fatalf("NewHandle failed: %v", err)
	}

	parsed, err := ParseHandle(h.String())
	if err != nil {
		t.Fatalf("ParseHandle failed: %v", err)
	}
	if parsed != h {
		t.Fatal("round trip mismatch")
	}
}

func TestParseHandleRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "!", "short", strings.Repeat("A", 100)} {
		if _, err := ParseHandle(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	h, err := NewHandle()
	if err != nil {
		t.Fatalf("NewHandle failed: %v", err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}

	token, err := EncodeRefreshToken(h.String(), secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken failed: %v", err)
	}

	handle, decoded, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("DecodeRefreshToken failed: %v", err)
	}
	if handle != h.String() {
		t.Fatalf("handle mismatch: %q vs %q", handle, h.String())
	}
	if decoded != secret {
		t.Fatal("secret mismatch")
	}
}

func TestDecodeRefreshTokenRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", strings.Repeat("A", 63)} {
		if _, _, err := DecodeRefreshToken(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestNewOTP(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
	}

	if _, err := NewOTP(3); err == nil {
		t.Fatal("expected error for too few digits")
	}
	if _, err := NewOTP(11); err == nil {
		t.Fatal("expected error for too many digits")
	}
}

func TestHashCodeDeterministic(t *testing.T) {
	if HashCode("123456") != HashCode("123456") {
		t.Fatal("same input must hash equal")
	}
	if HashCode("123456") == HashCode("654321") {
		t.Fatal("different inputs must hash differently")
	}
}

func TestCorrelationIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool, 100)
	for i := 0; i < 100; i++ {
		id, err := NewCorrelationID()
		if err != nil {
			t.Fatalf("NewCorrelationID failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
