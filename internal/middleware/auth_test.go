package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/medgate/medgate/internal/auth"
	"github.com/medgate/medgate/internal/db/repositories"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// fakeKeyCache is an in-memory KeyCache with call counting and injectable
// read errors.
type fakeKeyCache struct {
	mu      sync.Mutex
	entries map[string]string
	getErr  error

	gets, sets, deletes int
}

func newFakeKeyCache() *fakeKeyCache {
	return &fakeKeyCache{entries: make(map[string]string)}
}

func (f *fakeKeyCache) Get(_ context.Context, digest string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return "", false, f.getErr
	}
	id, ok := f.entries[digest]
	return id, ok, nil
}

func (f *fakeKeyCache) Set(_ context.Context, digest, principalID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.entries[digest] = principalID
	return nil
}

func (f *fakeKeyCache) Delete(_ context.Context, digest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.entries, digest)
	return nil
}

func newGuardPrincipalRepo(t *testing.T) (*repositories.PrincipalRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repositories.NewPrincipalRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func newGuardRouter(t *testing.T, hasher *auth.Hasher, kc *fakeKeyCache, repo *repositories.PrincipalRepository) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.Use(AuthMiddleware(hasher, kc, repo, time.Hour))
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"principal_id": c.GetString(PrincipalIDKey)})
	})
	return r
}

func doGuardRequest(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w
}

func testHasher(t *testing.T) *auth.Hasher {
	t.Helper()
	h, err := auth.NewHasher("test-pepper")
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

var principalCols = []string{"id", "email", "api_key_hash", "created_at"}

// ---------------------------------------------------------------------------
// Rejection paths
// ---------------------------------------------------------------------------

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	r := newGuardRouter(t, testHasher(t), newFakeKeyCache(), nil)
	if w := doGuardRequest(r, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_UnknownKeySameBodyAsMissing(t *testing.T) {
	hasher := testHasher(t)
	repo, mock := newGuardPrincipalRepo(t)
	mock.ExpectQuery("SELECT.*FROM principals.*WHERE api_key_hash").
		WillReturnRows(sqlmock.NewRows(principalCols))

	r := newGuardRouter(t, hasher, newFakeKeyCache(), repo)

	missing := doGuardRequest(r, "")
	invalid := doGuardRequest(r, "Bearer mg_nosuchkey")

	if missing.Code != http.StatusUnauthorized || invalid.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d/%d, want 401/401", missing.Code, invalid.Code)
	}
	// The two rejection bodies must be byte-identical so a caller cannot
	// distinguish "no key" from "wrong key".
	if missing.Body.String() != invalid.Body.String() {
		t.Errorf("rejection bodies differ: %q vs %q", missing.Body.String(), invalid.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Cache behavior
// ---------------------------------------------------------------------------

func TestAuthMiddleware_MissPopulatesCacheThenHits(t *testing.T) {
	hasher := testHasher(t)
	kc := newFakeKeyCache()
	repo, mock := newGuardPrincipalRepo(t)

	// Exactly one store lookup for two requests.
	mock.ExpectQuery("SELECT.*FROM principals.*WHERE api_key_hash").
		WithArgs(hasher.Hash("mg_goodkey")).
		WillReturnRows(sqlmock.NewRows(principalCols).
			AddRow("principal-1", "clinic@example.com", hasher.Hash("mg_goodkey"), time.Now()))

	r := newGuardRouter(t, hasher, kc, repo)

	first := doGuardRequest(r, "Bearer mg_goodkey")
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}
	second := doGuardRequest(r, "Bearer mg_goodkey")
	if second.Code != http.StatusOK {
		t.Fatalf("second request status = %d, want 200", second.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("store was not queried exactly once: %v", err)
	}
	if kc.sets != 1 {
		t.Errorf("cache writes = %d, want exactly 1", kc.sets)
	}

	var body map[string]string
	if err := json.Unmarshal(second.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["principal_id"] != "principal-1" {
		t.Errorf("principal_id = %q, want principal-1", body["principal_id"])
	}
}

func TestAuthMiddleware_CacheErrorDegradesToStore(t *testing.T) {
	hasher := testHasher(t)
	kc := newFakeKeyCache()
	kc.getErr = context.DeadlineExceeded

	repo, mock := newGuardPrincipalRepo(t)
	mock.ExpectQuery("SELECT.*FROM principals.*WHERE api_key_hash").
		WillReturnRows(sqlmock.NewRows(principalCols).
			AddRow("principal-1", "clinic@example.com", hasher.Hash("mg_goodkey"), time.Now()))

	r := newGuardRouter(t, hasher, kc, repo)
	if w := doGuardRequest(r, "Bearer mg_goodkey"); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 despite cache being down", w.Code)
	}
}

func TestAuthMiddleware_StoreErrorIsOpaque500(t *testing.T) {
	hasher := testHasher(t)
	repo, mock := newGuardPrincipalRepo(t)
	mock.ExpectQuery("SELECT.*FROM principals.*WHERE api_key_hash").
		WillReturnError(context.DeadlineExceeded)

	r := newGuardRouter(t, hasher, newFakeKeyCache(), repo)
	w := doGuardRequest(r, "Bearer mg_goodkey")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !json.Valid(w.Body.Bytes()) {
		t.Errorf("500 body is not JSON: %q", w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Invalidation
// ---------------------------------------------------------------------------

func TestAuthMiddleware_EvictedDigestFallsBackToStore(t *testing.T) {
	hasher := testHasher(t)
	kc := newFakeKeyCache()
	digest := hasher.Hash("mg_rotatedkey")
	kc.entries[digest] = "principal-1"

	// Rotation evicts the digest; the next request must hit the store, which
	// no longer knows it.
	if err := kc.Delete(context.Background(), digest); err != nil {
		t.Fatalf("delete: %v", err)
	}

	repo, mock := newGuardPrincipalRepo(t)
	mock.ExpectQuery("SELECT.*FROM principals.*WHERE api_key_hash").
		WithArgs(digest).
		WillReturnRows(sqlmock.NewRows(principalCols))

	r := newGuardRouter(t, hasher, kc, repo)
	if w := doGuardRequest(r, "Bearer mg_rotatedkey"); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 after rotation", w.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("store was not consulted after eviction: %v", err)
	}
}
