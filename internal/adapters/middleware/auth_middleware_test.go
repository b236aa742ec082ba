package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
)

func generateTestKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

func createTestToken(privateKey *rsa.PrivateKey, sessionID string, expired bool) string {
	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}

	claims := jwt.MapClaims{
		"sid": sessionID,
		"iat": time.Now().Unix(),
		"exp": exp.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, _ := token.SignedString(privateKey)
	return tokenString
}

// fakeSessionSource implements SessionSource over a fixed map.
type fakeSessionSource struct {
	sessions map[string]domain.Session
}

func (f *fakeSessionSource) Snapshot(ctx context.Context, id string) (domain.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return domain.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

func authenticatedSession(id string, role domain.Role) domain.Session {
	return domain.Session{
		ID:        id,
		State:     domain.StateAuthenticated,
		Principal: &domain.Principal{ID: "p-1", Email: "jane@school.example"},
		Role:      &role,
	}
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequireRole_NoAuthHeader(t *testing.T) {
	_, publicKey := generateTestKeys(t)
	m := NewAuthMiddleware(publicKey, &fakeSessionSource{})

	handler := m.RequireRole([]domain.Role{domain.RoleAdmin}, okHandler)

	req := httptest.NewRequest("GET", "/directory/users", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole_MalformedHeader(t *testing.T) {
	_, publicKey := generateTestKeys(t)
	m := NewAuthMiddleware(publicKey, &fakeSessionSource{})

	handler := m.RequireRole([]domain.Role{domain.RoleAdmin}, okHandler)

	req := httptest.NewRequest("GET", "/directory/users", nil)
	req.Header.Set("Authorization", "NotBearer")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole_ExpiredToken(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	source := &fakeSessionSource{sessions: map[string]domain.Session{
		"s-1": authenticatedSession("s-1", domain.RoleAdmin),
	}}
	m := NewAuthMiddleware(publicKey, source)

	handler := m.RequireRole([]domain.Role{domain.RoleAdmin}, okHandler)

	req := httptest.NewRequest("GET", "/directory/users", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(privateKey, "s-1", true))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole_UnknownSession(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	m := NewAuthMiddleware(publicKey, &fakeSessionSource{sessions: map[string]domain.Session{}})

	handler := m.RequireRole([]domain.Role{domain.RoleAdmin}, okHandler)

	req := httptest.NewRequest("GET", "/directory/users", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(privateKey, "s-gone", false))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRequireRole_WrongRole(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	source := &fakeSessionSource{sessions: map[string]domain.Session{
		"s-1": authenticatedSession("s-1", domain.RoleStudent),
	}}
	m := NewAuthMiddleware(publicKey, source)

	handler := m.RequireRole([]domain.Role{domain.RoleSuperAdmin, domain.RoleAdmin}, okHandler)

	req := httptest.NewRequest("GET", "/directory/users", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(privateKey, "s-1", false))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestRequireRole_AllowedRoleInjectsContext(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	source := &fakeSessionSource{sessions: map[string]domain.Session{
		"s-1": authenticatedSession("s-1", domain.RoleAdmin),
	}}
	m := NewAuthMiddleware(publicKey, source)

	var gotSID, gotUser, gotRole string
	handler := m.RequireRole([]domain.Role{domain.RoleAdmin}, func(w http.ResponseWriter, r *http.Request) {
		gotSID, _ = r.Context().Value(SessionIDKey).(string)
		gotUser, _ = r.Context().Value(UserIDKey).(string)
		gotRole, _ = r.Context().Value(RoleKey).(string)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/directory/users", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(privateKey, "s-1", false))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotSID != "s-1" || gotUser != "p-1" || gotRole != "admin" {
		t.Errorf("context values = %q, %q, %q", gotSID, gotUser, gotRole)
	}
}

// The same token must be re-admitted once the live session carries the role,
// without being reissued.
func TestRequireRole_ReadmitsAfterRoleResolves(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	loading := domain.Session{
		ID:        "s-1",
		State:     domain.StateResolving,
		Principal: &domain.Principal{ID: "p-1"},
		Loading:   true,
	}
	source := &fakeSessionSource{sessions: map[string]domain.Session{"s-1": loading}}
	m := NewAuthMiddleware(publicKey, source)

	handler := m.RequireRole([]domain.Role{domain.RoleTeacher}, okHandler)
	token := createTestToken(privateKey, "s-1", false)

	req := httptest.NewRequest("GET", "/teacher", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 while role is loading, got %d", rec.Code)
	}

	source.sessions["s-1"] = authenticatedSession("s-1", domain.RoleTeacher)

	req = httptest.NewRequest("GET", "/teacher", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 after role resolved, got %d", rec.Code)
	}
}

func TestWithSession_InjectsSessionIDWithoutGuard(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	// No sessions at all: WithSession must not consult the source.
	m := NewAuthMiddleware(publicKey, &fakeSessionSource{})

	var gotSID string
	handler := m.WithSession(func(w http.ResponseWriter, r *http.Request) {
		gotSID, _ = r.Context().Value(SessionIDKey).(string)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/register/complete", nil)
	req.Header.Set("Authorization", "Bearer "+createTestToken(privateKey, "s-pending", false))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotSID != "s-pending" {
		t.Errorf("expected session id s-pending, got %q", gotSID)
	}
}

func TestWithSession_RejectsInvalidToken(t *testing.T) {
	_, publicKey := generateTestKeys(t)
	m := NewAuthMiddleware(publicKey, &fakeSessionSource{})

	handler := m.WithSession(okHandler)

	req := httptest.NewRequest("POST", "/register/complete", nil)
	req.Header.Set("Authorization", "Bearer invalid.token.here")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	issuer := NewTokenIssuer(privateKey)

	role := domain.RoleNurse
	sess := domain.Session{
		ID:        "s-1",
		State:     domain.StateAuthenticated,
		Principal: &domain.Principal{ID: "p-1"},
		Role:      &role,
	}

	tokenString, err := issuer.Issue(sess)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	sid, err := sessionIDFromToken(tokenString, publicKey)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if sid != "s-1" {
		t.Errorf("expected session id s-1, got %q", sid)
	}
}

func TestTokenIssuer_WrongKeyRejected(t *testing.T) {
	privateKey, _ := generateTestKeys(t)
	_, otherPublic := generateTestKeys(t)
	issuer := NewTokenIssuer(privateKey)

	tokenString, err := issuer.Issue(domain.Session{ID: "s-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := sessionIDFromToken(tokenString, otherPublic); err == nil {
		t.Fatal("expected verification to fail with the wrong key")
	}
}
