package auth

import (
	"slices"
	"testing"
)

func TestParseDeviceTokens(t *testing.T) {
	r, err := ParseDeviceTokens("tok-1:inv-1, tok-2:inv-2")
	if err != nil {
		t.Fatalf("ParseDeviceTokens: %v", err)
	}
	if d, ok := r.Verify("tok-1"); !ok || d != "inv-1" {
		t.Errorf("Verify(tok-1) = %q, %v; want inv-1, true", d, ok)
	}
	if d, ok := r.Verify("tok-2"); !ok || d != "inv-2" {
		t.Errorf("Verify(tok-2) = %q, %v; want inv-2, true", d, ok)
	}
}

func TestParseSkipsMalformedEntries(t *testing.T) {
	r, err := ParseDeviceTokens("tok-1:inv-1,garbage,:inv-3,tok-4:,tok-2:inv-2")
	if err != nil {
		t.Fatalf("ParseDeviceTokens: %v", err)
	}
	devices := r.Devices()
	slices.Sort(devices)
	want := []string{"inv-1", "inv-2"}
	if !slices.Equal(devices, want) {
		t.Errorf("devices = %v, want %v", devices, want)
	}
}

func TestParseRejectsEmptyRegistry(t *testing.T) {
	for _, raw := range []string{"", "  ,  ,", "garbage", ":x,y:"} {
		if _, err := ParseDeviceTokens(raw); err == nil {
			t.Errorf("ParseDeviceTokens(%q) succeeded, want error", raw)
		}
	}
}

func TestParseKeepsFirstOnDuplicateToken(t *testing.T) {
	r, err := ParseDeviceTokens("tok-1:inv-1,tok-1:inv-9")
	if err != nil {
		t.Fatalf("ParseDeviceTokens: %v", err)
	}
	if d, ok := r.Verify("tok-1"); !ok || d != "inv-1" {
		t.Errorf("Verify(tok-1) = %q, %v; want inv-1 (first mapping wins)", d, ok)
	}
}

func TestVerifyUnknownToken(t *testing.T) {
	r, err := ParseDeviceTokens("tok-1:inv-1")
	if err != nil {
		t.Fatalf("ParseDeviceTokens: %v", err)
	}
	for _, token := range []string{"", "tok", "tok-1 ", "TOK-1", "tok-11"} {
		if d, ok := r.Verify(token); ok {
			t.Errorf("Verify(%q) = %q, true; want false", token, d)
		}
	}
}
