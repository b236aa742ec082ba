package services

import (
	"context"
	"sync"
	"time"

	"github.com/oakridge/school-admin/identity-access-service/internal/core/domain"
	"github.com/oakridge/school-admin/identity-access-service/internal/core/ports"
)

// fakeProvider implements ports.IdentityProvider with per-call overrides.
type fakeProvider struct {
	mu sync.Mutex

	signInPasswordFn  func(ctx context.Context, email, password string) (domain.Principal, error)
	signInFederatedFn func(ctx context.Context, assertion ports.FederatedAssertion) (domain.Principal, error)
	signOutErr        error

	signOuts []string
}

func (f *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (domain.Principal, error) {
	if f.signInPasswordFn != nil {
		return f.signInPasswordFn(ctx, email, password)
	}
	return domain.Principal{ID: "p-1", Email: email, DisplayName: "Jane Doe"}, nil
}

func (f *fakeProvider) SignInFederated(ctx context.Context, assertion ports.FederatedAssertion) (domain.Principal, error) {
	if f.signInFederatedFn != nil {
		return f.signInFederatedFn(ctx, assertion)
	}
	return domain.Principal{ID: "p-1", Email: "jane@school.example", DisplayName: "Jane Doe"}, nil
}

func (f *fakeProvider) SignOut(ctx context.Context, principalID string) error {
	f.mu.Lock()
	f.signOuts = append(f.signOuts, principalID)
	f.mu.Unlock()
	return f.signOutErr
}

func (f *fakeProvider) signOutCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signOuts...)
}

// fakeNotifier implements ports.StateNotifier over a plain channel.
type fakeNotifier struct {
	changes chan ports.StateChange
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{changes: make(chan ports.StateChange, 4)}
}

func (f *fakeNotifier) StateChanges() <-chan ports.StateChange { return f.changes }

// fakeDirectory implements ports.RoleDirectory backed by a map.
type fakeDirectory struct {
	mu sync.Mutex

	records map[string]domain.RoleRecord

	getErr     error
	createErr  error
	createHook func()

	created    []domain.RoleRecord
	payloads   [][]byte
	lastTouch  map[string]time.Time
	queryByErr error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		records:   make(map[string]domain.RoleRecord),
		lastTouch: make(map[string]time.Time),
	}
}

func (f *fakeDirectory) Get(ctx context.Context, principalID string) (*domain.RoleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[principalID]
	if !ok {
		return nil, ports.ErrRecordNotFound
	}
	return &rec, nil
}

func (f *fakeDirectory) Create(ctx context.Context, rec domain.RoleRecord, outboxPayload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.createHook != nil {
		f.createHook()
	}
	f.records[rec.ID] = rec
	f.created = append(f.created, rec)
	f.payloads = append(f.payloads, outboxPayload)
	return nil
}

func (f *fakeDirectory) Update(ctx context.Context, rec domain.RoleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[rec.ID]; !ok {
		return ports.ErrRecordNotFound
	}
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeDirectory) Delete(ctx context.Context, principalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, principalID)
	return nil
}

func (f *fakeDirectory) List(ctx context.Context) ([]domain.RoleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RoleRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeDirectory) QueryByUsername(ctx context.Context, username string) ([]domain.RoleRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryByErr != nil {
		return nil, f.queryByErr
	}
	var out []domain.RoleRecord
	for _, rec := range f.records {
		if rec.Username == username {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeDirectory) TouchLastLogin(ctx context.Context, principalID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTouch[principalID] = at
	return nil
}

func (f *fakeDirectory) put(rec domain.RoleRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = rec
}

// fakeStore implements ports.SessionStore in memory.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session

	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]domain.Session)}
}

func (f *fakeStore) Save(ctx context.Context, sess domain.Session, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.sessions[sess.ID] = sess
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return domain.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

var (
	_ ports.IdentityProvider = (*fakeProvider)(nil)
	_ ports.StateNotifier    = (*fakeNotifier)(nil)
	_ ports.RoleDirectory    = (*fakeDirectory)(nil)
	_ ports.SessionStore     = (*fakeStore)(nil)
)
