package pagination

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseRequestDefaults(t *testing.T) {
	req := httptest.NewRequest("GET", "/orders", nil)
	params, err := ParseRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != DefaultPageSize {
		t.Fatalf("expected default page size, got %d", params.PageSize)
	}
}

func TestParseRequestClampsAndValidates(t *testing.T) {
	req := httptest.NewRequest("GET", "/orders?pageSize=1000", nil)
	params, err := ParseRequest(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.PageSize != DefaultMaxPageSize {
		t.Fatalf("expected clamp to %d, got %d", DefaultMaxPageSize, params.PageSize)
	}

	req = httptest.NewRequest("GET", "/orders?pageSize=-1", nil)
	if _, err := ParseRequest(req); err == nil {
		t.Fatalf("expected error for negative page size")
	}

	req = httptest.NewRequest("GET", "/orders?pageToken=***", nil)
	if _, err := ParseRequest(req); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), ID: "ord_1"}
	token, err := EncodeToken(cursor)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.CreatedAt.Equal(cursor.CreatedAt) || decoded.ID != cursor.ID {
		t.Fatalf("unexpected cursor %#v", decoded)
	}
	if _, err := DecodeToken("not-base64!"); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestCursorAfter(t *testing.T) {
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	cursor := Cursor{CreatedAt: at, ID: "ord_5"}
	if !cursor.After(at.Add(-time.Second), "ord_9") {
		t.Fatalf("older items follow the cursor")
	}
	if !cursor.After(at, "ord_4") {
		t.Fatalf("same timestamp with lower id follows the cursor")
	}
	if cursor.After(at, "ord_6") {
		t.Fatalf("same timestamp with higher id precedes the cursor")
	}
}
