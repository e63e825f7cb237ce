package pagination

import (
	"encoding/base64"
	"testing"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cursor.ID != "42" {
		t.Fatalf("expected id 42, got %q", cursor.ID)
	}
}

func TestCursorTokenCarriesOnlyID(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if string(raw) != `{"id":"42"}` {
		t.Fatalf("unexpected cursor payload %s", raw)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	if _, err := DecodeCursor("%%%"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestBuildCursorPageInfo(t *testing.T) {
	items := []*int{intPtr(1), intPtr(2), intPtr(3)}
	info := BuildCursorPageInfo(items, 2, func(v *int) string {
		if *v == 2 {
			return "two"
		}
		return "other"
	})
	if !info.HasMore || info.NextPageToken != "two" {
		t.Fatalf("unexpected page info %+v", info)
	}

	info = BuildCursorPageInfo(items, 5, func(*int) string { return "x" })
	if info.HasMore || info.NextPageToken != "" {
		t.Fatalf("expected last page, got %+v", info)
	}
}

func TestLimitClamps(t *testing.T) {
	if got := (Pagination{}).Limit(); got != DefaultPageSize {
		t.Fatalf("expected default, got %d", got)
	}
	if got := (Pagination{PageSize: 1000}).Limit(); got != MaxPageSize {
		t.Fatalf("expected max, got %d", got)
	}
	if got := (Pagination{PageSize: 7}).Limit(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func intPtr(v int) *int { return &v }
