package cache

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/iotest"
)

func TestNewEntryKeepsResponseReadable(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/app.js", nil)
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/javascript"}},
		Body:       io.NopCloser(strings.NewReader("console.log(1)")),
	}
	entry, err := NewEntry(req, resp, TypeBasic)
	if err != nil {
		t.Fatalf("new entry error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "console.log(1)" {
		t.Fatalf("response body consumed: %q", string(body))
	}
	if string(entry.Body) != "console.log(1)" {
		t.Fatalf("entry body mismatch: %q", string(entry.Body))
	}

	resp.Header.Set("Content-Type", "text/plain")
	if entry.Header.Get("Content-Type") != "application/javascript" {
		t.Fatalf("entry header should be a copy")
	}
}

func TestEntryResponseIsIndependent(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/offline.html", nil)
	entry := newTestEntry(t, req, http.StatusOK, "offline")

	first := entry.Response(req)
	second := entry.Response(req)
	a, _ := io.ReadAll(first.Body)
	b, _ := io.ReadAll(second.Body)
	if string(a) != "offline" || string(b) != "offline" {
		t.Fatalf("each response should carry the full body: %q %q", a, b)
	}
	if first.StatusCode != http.StatusOK || first.ContentLength != int64(len("offline")) {
		t.Fatalf("unexpected response: %d %d", first.StatusCode, first.ContentLength)
	}
}

func TestEntryVaryStarNeverMatches(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/api/me", nil)
	entry := newTestEntry(t, req, http.StatusOK, "{}", "Vary", "*")
	if entry.Matches(req) {
		t.Fatalf("Vary: * must never match")
	}
}

func TestEntryVaryNamedHeader(t *testing.T) {
	stored := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/index.html", nil)
	stored.Header.Set("Accept-Language", "zh-CN")
	entry := newTestEntry(t, stored, http.StatusOK, "home", "Vary", "accept-language")

	same := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/index.html", nil)
	same.Header.Set("Accept-Language", "zh-CN")
	if !entry.Matches(same) {
		t.Fatalf("same Accept-Language should match")
	}

	other := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/index.html", nil)
	other.Header.Set("Accept-Language", "en-US")
	if entry.Matches(other) {
		t.Fatalf("different Accept-Language must not match")
	}

	missing := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/index.html", nil)
	if entry.Matches(missing) {
		t.Fatalf("missing Accept-Language must not match")
	}
}

func TestEntryVaryIgnoresUnforwardedHeaders(t *testing.T) {
	// 预缓存请求不带 Accept-Encoding，浏览器请求总会携带。
	precache := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/index.html", nil)
	entry := newTestEntry(t, precache, http.StatusOK, "home", "Vary", "Accept-Encoding, Accept-Language")
	if _, ok := entry.Vary["Accept-Encoding"]; ok {
		t.Fatalf("Accept-Encoding should not be recorded: %v", entry.Vary)
	}

	browser := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/index.html", nil)
	browser.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if !entry.Matches(browser) {
		t.Fatalf("Accept-Encoding must not take part in Vary matching")
	}

	browser.Header.Set("Accept-Language", "en-US")
	if entry.Matches(browser) {
		t.Fatalf("other Vary headers still apply")
	}

	// 旧版本写入的条目可能已记录 Accept-Encoding。
	legacy := entry.Clone()
	legacy.Vary["Accept-Encoding"] = ""
	browser.Header.Del("Accept-Language")
	if !legacy.Matches(browser) {
		t.Fatalf("recorded Accept-Encoding must be ignored on match")
	}
}

func TestNewEntryReadFailureFixesContentLength(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/assets/app.js", nil)
	resp := &http.Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{},
		ContentLength: 128,
		Body:          io.NopCloser(io.MultiReader(strings.NewReader("console.log("), iotest.ErrReader(io.ErrUnexpectedEOF))),
	}
	if _, err := NewEntry(req, resp, TypeBasic); err == nil {
		t.Fatalf("expected read error")
	}
	if resp.ContentLength != int64(len("console.log(")) {
		t.Fatalf("content length should follow the buffered body, got %d", resp.ContentLength)
	}
}

func TestEntryCloneIsDeep(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/", nil)
	req.Header.Set("Accept-Language", "zh-CN")
	entry := newTestEntry(t, req, http.StatusOK, "home", "Vary", "Accept-Language")

	clone := entry.Clone()
	clone.Body[0] = 'H'
	clone.Header.Set("Content-Type", "text/plain")
	clone.Vary["Accept-Language"] = "en"

	if string(entry.Body) != "home" {
		t.Fatalf("body shared with clone")
	}
	if entry.Header.Get("Content-Type") != "text/html" {
		t.Fatalf("header shared with clone")
	}
	if entry.Vary["Accept-Language"] != "zh-CN" {
		t.Fatalf("vary shared with clone")
	}
}

func TestEntryOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://library.vesiron.tech/", nil)
	cases := map[int]bool{200: true, 204: true, 299: true, 304: false, 404: false, 500: false}
	for status, want := range cases {
		if got := newTestEntry(t, req, status, "").OK(); got != want {
			t.Fatalf("status %d: expected ok=%v", status, want)
		}
	}
}

func TestTypeOf(t *testing.T) {
	origin, _ := url.Parse("https://library.vesiron.tech")
	build := func(finalURL string, headers ...string) *http.Response {
		req := httptest.NewRequest(http.MethodGet, finalURL, nil)
		header := http.Header{}
		for i := 0; i+1 < len(headers); i += 2 {
			header.Set(headers[i], headers[i+1])
		}
		return &http.Response{StatusCode: http.StatusOK, Header: header, Request: req}
	}

	if got := TypeOf(origin, build("https://library.vesiron.tech/styles.css")); got != TypeBasic {
		t.Fatalf("same origin should be basic, got %s", got)
	}
	if got := TypeOf(origin, build("https://cdn.example.com/lib.js", "Access-Control-Allow-Origin", "*")); got != TypeCORS {
		t.Fatalf("cross origin with ACAO should be cors, got %s", got)
	}
	if got := TypeOf(origin, build("https://cdn.example.com/lib.js")); got != TypeOpaque {
		t.Fatalf("cross origin without ACAO should be opaque, got %s", got)
	}
	if got := TypeOf(origin, build("http://library.vesiron.tech/styles.css")); got != TypeOpaque {
		t.Fatalf("scheme downgrade should not be basic, got %s", got)
	}
}
