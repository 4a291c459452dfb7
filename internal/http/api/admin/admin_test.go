package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dtusecurity/pwned-proxy/internal/config"
	"github.com/dtusecurity/pwned-proxy/internal/db"
	"github.com/dtusecurity/pwned-proxy/internal/domainsync"
	"github.com/dtusecurity/pwned-proxy/internal/hibp"
	"github.com/dtusecurity/pwned-proxy/internal/models"
	"github.com/dtusecurity/pwned-proxy/internal/security"

	"github.com/gin-gonic/gin"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testJWT = config.JWTConfig{Secret: "admin-test-secret", Expiry: time.Hour}

// newAdminEnv builds the full management surface over an in-memory
// database, with the domain syncer pointed at the given upstream payload.
func newAdminEnv(t *testing.T, subscribedDomains string) (*gorm.DB, *gin.Engine, *hibp.KeyProvider) {
	t.Helper()

	conn, err := db.Open("file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errSeed := conn.Create(&models.HIBPKey{APIKey: "upstream-secret"}).Error; errSeed != nil {
		t.Fatalf("seed upstream key: %v", errSeed)
	}

	hash, errHash := security.HashPassword("hunter22")
	if errHash != nil {
		t.Fatalf("hash password: %v", errHash)
	}
	if errAdmin := conn.Create(&models.Admin{Username: "root", PasswordHash: hash}).Error; errAdmin != nil {
		t.Fatalf("seed admin: %v", errAdmin)
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if subscribedDomains == "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(subscribedDomains))
	}))
	t.Cleanup(upstream.Close)

	keys := hibp.NewKeyProvider(conn)
	syncer := domainsync.NewSyncer(conn, hibp.NewClient(upstream.URL, keys))

	engine := gin.New()
	RegisterAdminRoutes(engine, conn, testJWT, keys, syncer)
	return conn, engine, keys
}

func request(t *testing.T, engine *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	return recorder
}

func login(t *testing.T, engine *gin.Engine) string {
	t.Helper()
	resp := request(t, engine, http.MethodPost, "/v0/admin/login", "", gin.H{
		"username": "root",
		"password": "hunter22",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var payload struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &payload); errDecode != nil {
		t.Fatalf("decode login response: %v", errDecode)
	}
	if payload.Token == "" {
		t.Fatalf("login returned empty token")
	}
	if payload.ExpiresIn != int64(time.Hour.Seconds()) {
		t.Fatalf("unexpected expires_in %d", payload.ExpiresIn)
	}
	return payload.Token
}

func seedDomain(t *testing.T, conn *gorm.DB, name string) {
	t.Helper()
	if err := conn.Create(&models.Domain{Name: name}).Error; err != nil {
		t.Fatalf("seed domain %s: %v", name, err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, engine, _ := newAdminEnv(t, "")

	resp := request(t, engine, http.MethodPost, "/v0/admin/login", "", gin.H{
		"username": "root",
		"password": "wrong",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.Code)
	}

	resp = request(t, engine, http.MethodPost, "/v0/admin/login", "", gin.H{
		"username": "ghost",
		"password": "hunter22",
	})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown admin, got %d", resp.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	_, engine, _ := newAdminEnv(t, "")

	if resp := request(t, engine, http.MethodGet, "/v0/admin/groups", "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}
	if resp := request(t, engine, http.MethodGet, "/v0/admin/groups", "not-a-jwt", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", resp.Code)
	}

	forged, errIssue := security.IssueAdminToken("other-secret", time.Hour, 1, "root")
	if errIssue != nil {
		t.Fatalf("issue forged token: %v", errIssue)
	}
	if resp := request(t, engine, http.MethodGet, "/v0/admin/groups", forged, nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with foreign-secret token, got %d", resp.Code)
	}
}

func TestGroupLifecycle(t *testing.T) {
	_, engine, _ := newAdminEnv(t, "")
	token := login(t, engine)

	resp := request(t, engine, http.MethodPost, "/v0/admin/groups", token, gin.H{"name": "tenant-a"})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create group: expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}
	var created struct {
		ID uint64 `json:"id"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &created); errDecode != nil {
		t.Fatalf("decode create response: %v", errDecode)
	}

	resp = request(t, engine, http.MethodPost, "/v0/admin/groups", token, gin.H{"name": "tenant-a"})
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate group: expected 409, got %d", resp.Code)
	}

	resp = request(t, engine, http.MethodGet, "/v0/admin/groups", token, nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "tenant-a") {
		t.Fatalf("list groups: got %d (%s)", resp.Code, resp.Body.String())
	}

	resp = request(t, engine, http.MethodDelete, fmt.Sprintf("/v0/admin/groups/%d", created.ID), token, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete group: expected 204, got %d", resp.Code)
	}
	resp = request(t, engine, http.MethodDelete, fmt.Sprintf("/v0/admin/groups/%d", created.ID), token, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("delete missing group: expected 404, got %d", resp.Code)
	}
}

func TestAPIKeyCreateReturnsSecretOnce(t *testing.T) {
	conn, engine, _ := newAdminEnv(t, "")
	token := login(t, engine)
	seedDomain(t, conn, "dtu.dk")

	group := models.Group{Name: "tenant-a"}
	if err := conn.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}

	resp := request(t, engine, http.MethodPost, "/v0/admin/api-keys", token, gin.H{
		"name":     "scanner",
		"group_id": group.ID,
		"domains":  []string{"dtu.dk"},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create key: expected 201, got %d (%s)", resp.Code, resp.Body.String())
	}
	var created struct {
		ID  uint64 `json:"id"`
		Key string `json:"key"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &created); errDecode != nil {
		t.Fatalf("decode create response: %v", errDecode)
	}
	if len(created.Key) != 32 {
		t.Fatalf("expected 32-char plaintext secret, got %q", created.Key)
	}

	var row models.APIKey
	if err := conn.Preload("Domains").First(&row, created.ID).Error; err != nil {
		t.Fatalf("load key row: %v", err)
	}
	if row.KeyDigest != security.HashAPIKey(created.Key) {
		t.Fatalf("stored digest does not match returned secret")
	}
	if len(row.Domains) != 1 || row.Domains[0].Name != "dtu.dk" {
		t.Fatalf("unexpected domain grants %+v", row.Domains)
	}

	// The listing never includes secrets or digests.
	resp = request(t, engine, http.MethodGet, "/v0/admin/api-keys", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list keys: expected 200, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), created.Key) || strings.Contains(resp.Body.String(), row.KeyDigest) {
		t.Fatalf("listing leaked secret material: %s", resp.Body.String())
	}
}

func TestAPIKeyCreateRejectsUnknownDomain(t *testing.T) {
	conn, engine, _ := newAdminEnv(t, "")
	token := login(t, engine)

	group := models.Group{Name: "tenant-a"}
	if err := conn.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}

	resp := request(t, engine, http.MethodPost, "/v0/admin/api-keys", token, gin.H{
		"name":     "scanner",
		"group_id": group.ID,
		"domains":  []string{"not-in-catalog.dk"},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown domain, got %d (%s)", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "unknown domain: not-in-catalog.dk") {
		t.Fatalf("error should name the unknown domain: %s", resp.Body.String())
	}
}

func TestAPIKeyRotateReplacesDigest(t *testing.T) {
	conn, engine, _ := newAdminEnv(t, "")
	token := login(t, engine)

	group := models.Group{Name: "tenant-a"}
	if err := conn.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	oldSecret, _ := security.GenerateAPIKey()
	key := models.APIKey{Name: "scanner", GroupID: group.ID, KeyDigest: security.HashAPIKey(oldSecret)}
	if err := conn.Create(&key).Error; err != nil {
		t.Fatalf("seed key: %v", err)
	}

	resp := request(t, engine, http.MethodPost, fmt.Sprintf("/v0/admin/api-keys/%d/rotate", key.ID), token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("rotate: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var rotated struct {
		Key string `json:"key"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &rotated); errDecode != nil {
		t.Fatalf("decode rotate response: %v", errDecode)
	}
	if rotated.Key == oldSecret {
		t.Fatalf("rotation returned the old secret")
	}

	var row models.APIKey
	if err := conn.First(&row, key.ID).Error; err != nil {
		t.Fatalf("load key row: %v", err)
	}
	if row.KeyDigest == security.HashAPIKey(oldSecret) {
		t.Fatalf("old secret still valid after rotation")
	}
	if row.KeyDigest != security.HashAPIKey(rotated.Key) {
		t.Fatalf("stored digest does not match rotated secret")
	}

	resp = request(t, engine, http.MethodPost, "/v0/admin/api-keys/99999/rotate", token, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("rotate missing key: expected 404, got %d", resp.Code)
	}
}

func TestAPIKeySetDomainsReplacesGrants(t *testing.T) {
	conn, engine, _ := newAdminEnv(t, "")
	token := login(t, engine)
	seedDomain(t, conn, "dtu.dk")
	seedDomain(t, conn, "sdu.dk")

	group := models.Group{Name: "tenant-a"}
	if err := conn.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	secret, _ := security.GenerateAPIKey()
	key := models.APIKey{Name: "scanner", GroupID: group.ID, KeyDigest: security.HashAPIKey(secret)}
	if err := conn.Create(&key).Error; err != nil {
		t.Fatalf("seed key: %v", err)
	}

	resp := request(t, engine, http.MethodPut, fmt.Sprintf("/v0/admin/api-keys/%d/domains", key.ID), token, gin.H{
		"domains": []string{"SDU.dk"},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("set domains: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	var row models.APIKey
	if err := conn.Preload("Domains").First(&row, key.ID).Error; err != nil {
		t.Fatalf("load key row: %v", err)
	}
	if len(row.Domains) != 1 || row.Domains[0].Name != "sdu.dk" {
		t.Fatalf("expected single lowercased grant, got %+v", row.Domains)
	}
}

func TestHIBPKeySetInvalidatesProviderCache(t *testing.T) {
	conn, engine, keys := newAdminEnv(t, "")
	token := login(t, engine)

	// Warm the cache with the seeded key.
	first, errGet := keys.Get(context.Background())
	if errGet != nil {
		t.Fatalf("get key: %v", errGet)
	}
	if first != "upstream-secret" {
		t.Fatalf("unexpected initial key %q", first)
	}

	resp := request(t, engine, http.MethodPut, "/v0/admin/hibp-key", token, gin.H{"key": "fresh-secret"})
	if resp.Code != http.StatusOK {
		t.Fatalf("set key: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	second, errGet := keys.Get(context.Background())
	if errGet != nil {
		t.Fatalf("get key after set: %v", errGet)
	}
	if second != "fresh-secret" {
		t.Fatalf("expected fresh key after invalidation, got %q", second)
	}

	// Only one row survives replacement.
	var count int64
	if err := conn.Model(&models.HIBPKey{}).Count(&count).Error; err != nil {
		t.Fatalf("count key rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single key row, got %d", count)
	}

	// Get masks everything but the tail.
	resp = request(t, engine, http.MethodGet, "/v0/admin/hibp-key", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("get masked key: expected 200, got %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "fresh-secret") {
		t.Fatalf("masked response leaked the key: %s", resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "cret") {
		t.Fatalf("masked response should keep the last four characters: %s", resp.Body.String())
	}
}

func TestDomainSyncEndpoint(t *testing.T) {
	conn, engine, _ := newAdminEnv(t, `[{"DomainName":"DTU.dk","PwnCount":7},{"DomainName":"sdu.dk","PwnCount":3}]`)
	token := login(t, engine)

	resp := request(t, engine, http.MethodPost, "/v0/admin/domains/sync", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	var names []string
	if err := conn.Model(&models.Domain{}).Order("name ASC").Pluck("name", &names).Error; err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(names) != 2 || names[0] != "dtu.dk" || names[1] != "sdu.dk" {
		t.Fatalf("unexpected catalog %v", names)
	}

	resp = request(t, engine, http.MethodGet, "/v0/admin/domains", token, nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "dtu.dk") {
		t.Fatalf("list domains: got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestDomainListNameFilter(t *testing.T) {
	conn, engine, _ := newAdminEnv(t, "")
	token := login(t, engine)
	seedDomain(t, conn, "dtu.dk")
	seedDomain(t, conn, "sdu.dk")

	resp := request(t, engine, http.MethodGet, "/v0/admin/domains?name=DTU", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("filtered list: expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "dtu.dk") {
		t.Fatalf("filter should match regardless of case: %s", body)
	}
	if strings.Contains(body, "sdu.dk") {
		t.Fatalf("filter leaked non-matching domain: %s", body)
	}
}

func TestHIBPKeyReplacementIsLogged(t *testing.T) {
	_, engine, _ := newAdminEnv(t, "")
	token := login(t, engine)

	hook := logrustest.NewGlobal()
	defer hook.Reset()

	resp := request(t, engine, http.MethodPut, "/v0/admin/hibp-key", token, gin.H{"key": "fresh-secret"})
	if resp.Code != http.StatusOK {
		t.Fatalf("set key: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	logged := false
	for _, entry := range hook.AllEntries() {
		if entry.Message != "admin: upstream api key replaced" {
			continue
		}
		logged = true
		if entry.Data["admin"] != "root" {
			t.Fatalf("replacement log missing acting admin: %+v", entry.Data)
		}
		if id, ok := entry.Data["admin_id"].(uint64); !ok || id == 0 {
			t.Fatalf("replacement log missing admin id: %+v", entry.Data)
		}
	}
	if !logged {
		t.Fatalf("expected a log record for the key replacement")
	}
}

func TestDomainSyncUpstreamFailure(t *testing.T) {
	_, engine, _ := newAdminEnv(t, "")
	token := login(t, engine)

	resp := request(t, engine, http.MethodPost, "/v0/admin/domains/sync", token, nil)
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 when upstream sync fails, got %d", resp.Code)
	}
}

func TestEndpointLogListFilters(t *testing.T) {
	conn, engine, _ := newAdminEnv(t, "")
	token := login(t, engine)

	group := models.Group{Name: "tenant-a"}
	if err := conn.Create(&group).Error; err != nil {
		t.Fatalf("seed group: %v", err)
	}
	secret, _ := security.GenerateAPIKey()
	key := models.APIKey{Name: "scanner", GroupID: group.ID, KeyDigest: security.HashAPIKey(secret)}
	if err := conn.Create(&key).Error; err != nil {
		t.Fatalf("seed key: %v", err)
	}
	rows := []models.EndpointLog{
		{APIKeyID: &key.ID, GroupID: &group.ID, Endpoint: "breached-domain", StatusCode: 200, Success: true},
		{APIKeyID: &key.ID, GroupID: &group.ID, Endpoint: "breached-domain", StatusCode: 403, Success: false},
		{Endpoint: "breaches", StatusCode: 200, Success: true},
	}
	for i := range rows {
		if err := conn.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed log row: %v", err)
		}
	}

	resp := request(t, engine, http.MethodGet, "/v0/admin/logs", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list logs: expected 200, got %d", resp.Code)
	}
	var page struct {
		Total int64 `json:"total"`
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &page); errDecode != nil {
		t.Fatalf("decode logs response: %v", errDecode)
	}
	if page.Total != 3 {
		t.Fatalf("expected total 3, got %d", page.Total)
	}

	resp = request(t, engine, http.MethodGet, "/v0/admin/logs?endpoint=breached-domain&success=false", token, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("filtered list: expected 200, got %d", resp.Code)
	}
	if errDecode := json.Unmarshal(resp.Body.Bytes(), &page); errDecode != nil {
		t.Fatalf("decode filtered response: %v", errDecode)
	}
	if page.Total != 1 {
		t.Fatalf("expected 1 filtered row, got %d", page.Total)
	}
}

func TestHealthz(t *testing.T) {
	_, engine, _ := newAdminEnv(t, "")
	resp := request(t, engine, http.MethodGet, "/healthz", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.Code)
	}
}
