package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/oakridge/school-admin/identity-access-service/internal/adapters/middleware"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/services"
)

type stubProvider struct {
	principal  domain.Principal
	signInErr  error
	signOutErr error
}

func (s *stubProvider) SignInWithPassword(ctx context.Context, email, password string) (domain.Principal, error) {
	if s.signInErr != nil {
		return domain.Principal{}, s.signInErr
	}
	p := s.principal
	p.Email = email
	return p, nil
}

func (s *stubProvider) SignInFederated(ctx context.Context, assertion ports.FederatedAssertion) (domain.Principal, error) {
	if s.signInErr != nil {
		return domain.Principal{}, s.signInErr
	}
	return s.principal, nil
}

func (s *stubProvider) SignOut(ctx context.Context, principalID string) error {
	return s.signOutErr
}

type stubDirectory struct {
	mu sync.Mutex

	records   map[string]domain.RoleRecord
	getErr    error
	createErr error
	updateErr error
	deleteErr error
	listErr   error
	queryErr  error

	created []domain.RoleRecord
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{records: make(map[string]domain.RoleRecord)}
}

func (s *stubDirectory) Get(ctx context.Context, principalID string) (*domain.RoleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[principalID]
	if !ok {
		return nil, ports.ErrRecordNotFound
	}
	return &rec, nil
}

func (s *stubDirectory) Create(ctx context.Context, rec domain.RoleRecord, outboxPayload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.records[rec.ID] = rec
	s.created = append(s.created, rec)
	return nil
}

func (s *stubDirectory) Update(ctx context.Context, rec domain.RoleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.records[rec.ID]; !ok {
		return ports.ErrRecordNotFound
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *stubDirectory) Delete(ctx context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.records, principalID)
	return nil
}

func (s *stubDirectory) List(ctx context.Context) ([]domain.RoleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.RoleRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubDirectory) QueryByUsername(ctx context.Context, username string) ([]domain.RoleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []domain.RoleRecord
	for _, rec := range s.records {
		if rec.Username == username {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubDirectory) TouchLastLogin(ctx context.Context, principalID string, at time.Time) error {
	return nil
}

type stubStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newStubStore() *stubStore {
	return &stubStore{sessions: make(map[string]domain.Session)}
}

func (s *stubStore) Save(ctx context.Context, sess domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *stubStore) Get(ctx context.Context, id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

type stubFlowStarter struct {
	authURL string
	err     error
}

func (s *stubFlowStarter) Begin(ctx context.Context) (string, string, string, error) {
	if s.err != nil {
		return "", "", "", s.err
	}
	return s.authURL, "state-1", "nonce-1", nil
}

// testEnv wires real services over stubbed ports for handler tests.
type testEnv struct {
	provider  *stubProvider
	directory *stubDirectory
	store     *stubStore
	registry  *services.Registry
	flow      *services.RegistrationFlow
	tokens    *middleware.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	provider := &stubProvider{principal: domain.Principal{ID: "p-1", Email: "jane@school.example", DisplayName: "Jane Doe"}}
	directory := newStubDirectory()
	store := newStubStore()

	return &testEnv{
		provider:  provider,
		directory: directory,
		store:     store,
		registry:  services.NewRegistry(provider, directory, store),
		flow:      services.NewRegistrationFlow(),
		tokens:    middleware.NewTokenIssuer(privateKey),
	}
}

func (e *testEnv) putTeacher(id string) {
	e.directory.mu.Lock()
	e.directory.records[id] = domain.RoleRecord{
		ID:        id,
		Email:     "jane@school.example",
		Role:      domain.RoleTeacher,
		Username:  "jane.doe",
		FirstName: "Jane",
		LastName:  "Doe",
	}
	e.directory.mu.Unlock()
}
