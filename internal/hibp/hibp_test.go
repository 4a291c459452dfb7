package hibp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dtusecurity/pwned-proxy/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.HIBPKey{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func seedUpstreamKey(t *testing.T, conn *gorm.DB, key string) {
	t.Helper()
	if err := conn.Create(&models.HIBPKey{APIKey: key}).Error; err != nil {
		t.Fatalf("seed upstream key: %v", err)
	}
}

func TestKeyProviderMissingKey(t *testing.T) {
	conn := openTestDB(t)
	provider := NewKeyProvider(conn)

	if _, err := provider.Get(context.Background()); !errors.Is(err, ErrKeyNotConfigured) {
		t.Fatalf("expected ErrKeyNotConfigured, got %v", err)
	}
}

func TestKeyProviderCachesAndInvalidates(t *testing.T) {
	conn := openTestDB(t)
	seedUpstreamKey(t, conn, "first-key")
	provider := NewKeyProvider(conn)

	key, err := provider.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if key != "first-key" {
		t.Fatalf("expected first-key, got %q", key)
	}

	if err := conn.Model(&models.HIBPKey{}).Where("1 = 1").Update("api_key", "second-key").Error; err != nil {
		t.Fatalf("update key: %v", err)
	}

	// Cache is still fresh, so the old key is served.
	key, err = provider.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if key != "first-key" {
		t.Fatalf("expected cached first-key, got %q", key)
	}

	provider.Invalidate()
	key, err = provider.Get(context.Background())
	if err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if key != "second-key" {
		t.Fatalf("expected second-key after invalidate, got %q", key)
	}
}

func TestKeyProviderTTLExpiry(t *testing.T) {
	conn := openTestDB(t)
	seedUpstreamKey(t, conn, "first-key")
	provider := NewKeyProvider(conn)

	current := time.Now()
	provider.nowFn = func() time.Time { return current }

	if key, _ := provider.Get(context.Background()); key != "first-key" {
		t.Fatalf("expected first-key, got %q", key)
	}
	if err := conn.Model(&models.HIBPKey{}).Where("1 = 1").Update("api_key", "second-key").Error; err != nil {
		t.Fatalf("update key: %v", err)
	}

	current = current.Add(defaultKeyTTL + time.Second)
	key, err := provider.Get(context.Background())
	if err != nil {
		t.Fatalf("get after ttl: %v", err)
	}
	if key != "second-key" {
		t.Fatalf("expected second-key after ttl expiry, got %q", key)
	}
}

func TestClientFetchInjectsHeaders(t *testing.T) {
	var gotKey, gotAgent, gotPath, gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("hibp-api-key")
		gotAgent = r.Header.Get("User-Agent")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[{"Name":"Adobe"}]`))
	}))
	defer upstream.Close()

	conn := openTestDB(t)
	seedUpstreamKey(t, conn, "upstream-secret")
	client := NewClient(upstream.URL, NewKeyProvider(conn))

	query := url.Values{}
	query.Set("Domain", "dtu.dk")
	resp, err := client.Fetch(context.Background(), "breaches", query)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != `[{"Name":"Adobe"}]` {
		t.Fatalf("unexpected body %s", resp.Body)
	}
	if gotKey != "upstream-secret" {
		t.Fatalf("expected upstream key header, got %q", gotKey)
	}
	if gotAgent != "pwned_proxy_app/1.0" {
		t.Fatalf("unexpected user agent %q", gotAgent)
	}
	if gotPath != "/breaches" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery != "Domain=dtu.dk" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestClientFetchTransportError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close() // nothing listens anymore

	conn := openTestDB(t)
	seedUpstreamKey(t, conn, "upstream-secret")
	client := NewClient(upstream.URL, NewKeyProvider(conn))

	_, err := client.Fetch(context.Background(), "breaches", nil)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestClientFetchKeyNotConfigured(t *testing.T) {
	conn := openTestDB(t)
	client := NewClient("http://127.0.0.1:1", NewKeyProvider(conn))

	if _, err := client.Fetch(context.Background(), "breaches", nil); !errors.Is(err, ErrKeyNotConfigured) {
		t.Fatalf("expected ErrKeyNotConfigured, got %v", err)
	}
}

func TestRelayForwardsStatusBodyAndRetryAfter(t *testing.T) {
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	header := http.Header{}
	header.Set("Retry-After", "7")
	header.Set("X-Internal", "drop-me")
	Relay(c, &UpstreamResponse{
		StatusCode: http.StatusTooManyRequests,
		Header:     header,
		Body:       []byte(`{"message":"slow down"}`),
	})

	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", recorder.Code)
	}
	if recorder.Header().Get("Retry-After") != "7" {
		t.Fatalf("expected Retry-After forwarded")
	}
	if recorder.Header().Get("X-Internal") != "" {
		t.Fatalf("unexpected header forwarded")
	}
	if recorder.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected json content type, got %q", recorder.Header().Get("Content-Type"))
	}
	if recorder.Body.String() != `{"message":"slow down"}` {
		t.Fatalf("unexpected body %q", recorder.Body.String())
	}
}

func TestRelayNonJSONBody(t *testing.T) {
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	Relay(c, &UpstreamResponse{
		StatusCode: http.StatusNotFound,
		Header:     http.Header{},
		Body:       []byte("not found"),
	})

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Fatalf("expected text content type, got %q", got)
	}
	if recorder.Body.String() != "not found" {
		t.Fatalf("unexpected body %q", recorder.Body.String())
	}
}
