package cache

import (
	"errors"
	"net/http"
	"testing"
)

func TestKeyForNormalizesURL(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "HTTPS://Library.Vesiron.Tech/patents/G2.html?lang=zh#summary", nil)
	key := KeyFor(req)
	if key.Method != http.MethodGet {
		t.Fatalf("unexpected method: %s", key.Method)
	}
	if key.URL != "https://library.vesiron.tech/patents/G2.html?lang=zh" {
		t.Fatalf("unexpected url: %s", key.URL)
	}
}

func TestKeyForRootPath(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://library.vesiron.tech", nil)
	if got := KeyFor(req).URL; got != "https://library.vesiron.tech/" {
		t.Fatalf("expected trailing slash, got %s", got)
	}
}

func TestParseKeyRoundTrip(t *testing.T) {
	key := Key{Method: http.MethodGet, URL: "https://library.vesiron.tech/index.html"}
	parsed, err := ParseKey(key.String())
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if parsed != key {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
	if _, err := ParseKey("GET"); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
}
