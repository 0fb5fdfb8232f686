package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchSuccess(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "test-agent/1.0")
	body, status, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d", status)
	}
	if body != "<html><body>hello</body></html>" {
		t.Errorf("body = %q", body)
	}
	if gotUA != "test-agent/1.0" {
		t.Errorf("user agent = %q", gotUA)
	}
}

func TestFetchStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "")
	_, status, err := f.Fetch(context.Background(), srv.URL)
	if status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", status)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if statusErr.Status != http.StatusForbidden {
		t.Errorf("StatusError.Status = %d", statusErr.Status)
	}
}

func TestFetchRetryAfter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "")
	_, _, err := f.Fetch(context.Background(), srv.URL)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want *StatusError", err)
	}
	if statusErr.RetryAfter != 2*time.Minute {
		t.Errorf("RetryAfter = %v, want 2m", statusErr.RetryAfter)
	}
}

func TestFetchConnectionFailure(t *testing.T) {
	t.Parallel()

	f := NewHTTPFetcher(time.Second, "")
	_, status, err := f.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	if err == nil {
		t.Fatal("expected an error")
	}
	if status != 0 {
		t.Errorf("status = %d, want 0 for connection failure", status)
	}
}

func TestRobotsCacheDisallow(t *testing.T) {
	t.Parallel()

	var robotsFetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			robotsFetches++
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\nCrawl-delay: 2\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cache := NewRobotsCache(5*time.Second, time.Hour, "test-agent")
	ctx := context.Background()

	if !cache.IsAllowed(ctx, srv.URL+"/news/story") {
		t.Error("expected /news/story to be allowed")
	}
	if cache.IsAllowed(ctx, srv.URL+"/private/secret") {
		t.Error("expected /private/secret to be disallowed")
	}
	if robotsFetches != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", robotsFetches)
	}
}

func TestRobotsCacheMissingAllowsAll(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cache := NewRobotsCache(5*time.Second, time.Hour, "test-agent")
	if !cache.IsAllowed(context.Background(), srv.URL+"/anything") {
		t.Error("missing robots.txt should allow everything")
	}
}

func TestReaderGatewayFallback(t *testing.T) {
	t.Parallel()

	var gotURI string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI = r.RequestURI
		_, _ = w.Write([]byte("proxied content"))
	}))
	defer srv.Close()

	gateway := NewReaderGateway(srv.URL+"/read", 5*time.Second, "")
	body, err := gateway.FetchFallback(context.Background(), "https://example.com/blocked")
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if body != "proxied content" {
		t.Errorf("body = %q", body)
	}
	if gotURI != "/read/https%3A%2F%2Fexample.com%2Fblocked" {
		t.Errorf("unexpected gateway request %q", gotURI)
	}
}

func TestReaderGatewayDisabled(t *testing.T) {
	t.Parallel()

	gateway := NewReaderGateway("", 5*time.Second, "")
	if gateway.Enabled() {
		t.Error("empty endpoint should disable the gateway")
	}
	if _, err := gateway.FetchFallback(context.Background(), "https://example.com"); err == nil {
		t.Error("expected an error from a disabled gateway")
	}
}
