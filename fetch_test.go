package imageproxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchSuccess(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nrest-of-file")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}))
	defer ts.Close()

	f := newDirectFetcher()
	result, err := f.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", result.ContentType)
	}
	if string(result.Data) != string(png) {
		t.Errorf("Data mismatch")
	}
}

func TestFetchRejectsDisallowedContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer ts.Close()

	f := newDirectFetcher()
	_, err := f.Fetch(context.Background(), ts.URL)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindInvalidContentType {
		t.Fatalf("expected KindInvalidContentType, got %v", err)
	}
}

func TestFetchEnforcesSizeLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(make([]byte, 64))
	}))
	defer ts.Close()

	f := newDirectFetcher(WithLimits(FetchLimits{
		MaxImageSize:        16,
		MaxRedirects:        5,
		TimeoutSeconds:       5,
		AllowedContentTypes: defaultAllowedContentTypes,
	}))
	_, err := f.Fetch(context.Background(), ts.URL)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindResponseTooLarge {
		t.Fatalf("expected KindResponseTooLarge, got %v", err)
	}
}

func TestFetchEnforcesRedirectCap(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/b", http.StatusFound) })
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/c", http.StatusFound) })
	mux.HandleFunc("/c", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/a", http.StatusFound) })
	ts := httptest.NewServer(&mux)
	defer ts.Close()

	f := newDirectFetcher(WithLimits(FetchLimits{
		MaxImageSize:        1 << 20,
		MaxRedirects:        1,
		TimeoutSeconds:       5,
		AllowedContentTypes: defaultAllowedContentTypes,
	}))
	_, err := f.Fetch(context.Background(), ts.URL+"/a")
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindTooManyRedirects {
		t.Fatalf("expected KindTooManyRedirects, got %v", err)
	}
}

func TestFetchRejectsNonHTTPScheme(t *testing.T) {
	f := newDirectFetcher()
	_, err := f.Fetch(context.Background(), "ftp://example.com/image.png")
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindInvalidURL {
		t.Fatalf("expected KindInvalidURL, got %v", err)
	}
}

func TestFetchSendsFixedHeaderProfile(t *testing.T) {
	var gotUA, gotAccept string
	var hadCookie bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		hadCookie = r.Header.Get("Cookie") != ""
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG\r\n\x1a\n"))
	}))
	defer ts.Close()

	f := newDirectFetcher()
	if _, err := f.Fetch(context.Background(), ts.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUA != fetchUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, fetchUserAgent)
	}
	if !strings.Contains(gotAccept, "image") {
		t.Errorf("Accept = %q, want image/*", gotAccept)
	}
	if hadCookie {
		t.Errorf("expected no Cookie header to be sent")
	}
}

func TestFetchDoesNotSniffBodyAgainstClaimedType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("GIF89a...not actually a png"))
	}))
	defer ts.Close()

	f := newDirectFetcher()
	result, err := f.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", result.ContentType)
	}
}

func TestFetchSetsFinalURLAfterRedirect(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) { http.Redirect(w, r, "/end", http.StatusFound) })
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("\x89PNG\r\n\x1a\n"))
	})
	ts := httptest.NewServer(&mux)
	defer ts.Close()

	f := newDirectFetcher()
	result, err := f.Fetch(context.Background(), ts.URL+"/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FinalURL != ts.URL+"/end" {
		t.Errorf("FinalURL = %q, want %q", result.FinalURL, ts.URL+"/end")
	}
	if result.FromCache {
		t.Errorf("FromCache = true, want false for a fresh Fetch")
	}
}
