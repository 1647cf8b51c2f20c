package auth

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Hasher
// ---------------------------------------------------------------------------

func TestNewHasher_EmptyPepper(t *testing.T) {
	if _, err := NewHasher(""); err == nil {
		t.Error("expected error for empty pepper")
	}
}

func TestHash_Deterministic(t *testing.T) {
	h, err := NewHasher("test-pepper")
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	d1 := h.Hash("mg_somekey")
	d2 := h.Hash("mg_somekey")
	if d1 != d2 {
		t.Errorf("same input produced different digests: %q vs %q", d1, d2)
	}
	if len(d1) != 64 {
		t.Errorf("digest length = %d, want 64 hex chars", len(d1))
	}
}

func TestHash_PepperChangesDigest(t *testing.T) {
	h1, _ := NewHasher("pepper-one")
	h2, _ := NewHasher("pepper-two")

	if h1.Hash("mg_somekey") == h2.Hash("mg_somekey") {
		t.Error("different peppers produced the same digest")
	}
}

func TestHash_InputChangesDigest(t *testing.T) {
	h, _ := NewHasher("test-pepper")
	if h.Hash("mg_key_a") == h.Hash("mg_key_b") {
		t.Error("different keys produced the same digest")
	}
}

// ---------------------------------------------------------------------------
// GenerateAPIKey
// ---------------------------------------------------------------------------

func TestGenerateAPIKey_CarriesPrefix(t *testing.T) {
	key, err := GenerateAPIKey("mg_")
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(key, "mg_") {
		t.Errorf("key %q does not carry the mg_ prefix", key)
	}
	if len(key) < 3+40 {
		t.Errorf("key %q looks too short for %d random bytes", key, APIKeyLength)
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	a, err := GenerateAPIKey("mg_")
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	b, err := GenerateAPIKey("mg_")
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if a == b {
		t.Error("two generated keys are identical")
	}
}

// ---------------------------------------------------------------------------
// ExtractAPIKeyFromHeader
// ---------------------------------------------------------------------------

func TestExtractAPIKeyFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"bearer form", "Bearer mg_abc123", "mg_abc123", false},
		{"bare key", "mg_abc123", "mg_abc123", false},
		{"empty header", "", "", true},
		{"bearer with only whitespace", "Bearer   ", "", true},
		{"surrounding whitespace trimmed", "Bearer  mg_abc123 ", "mg_abc123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractAPIKeyFromHeader(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for header %q", tt.header)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}
