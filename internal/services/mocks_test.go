package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/consensus/internal/auth"
	"github.com/BradenHooton/consensus/internal/models"
	"github.com/BradenHooton/consensus/internal/query"
	pkgauth "github.com/BradenHooton/consensus/pkg/auth"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc        func(ctx context.Context, id int64) (*models.User, error)
	GetByUsernameFunc  func(ctx context.Context, username string) (*models.User, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	UsernameTakenFunc  func(ctx context.Context, username string, excludeID int64) (bool, error)
	CreateFunc         func(ctx context.Context, user *models.User) error
	UpdateFunc         func(ctx context.Context, user *models.User) error
	UpdatePasswordFunc func(ctx context.Context, id int64, hash string, actor *models.Principal, at time.Time) error
	SoftDeleteFunc     func(ctx context.Context, id int64, actor *models.Principal, at time.Time) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error) {
	if m.UsernameTakenFunc != nil {
		return m.UsernameTakenFunc(ctx, username, excludeID)
	}
	return false, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	user.ID = 100
	return nil
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, user)
	}
	return nil
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id int64, hash string, actor *models.Principal, at time.Time) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, hash, actor, at)
	}
	return nil
}

func (m *MockUserRepository) SoftDelete(ctx context.Context, id int64, actor *models.Principal, at time.Time) error {
	if m.SoftDeleteFunc != nil {
		return m.SoftDeleteFunc(ctx, id, actor, at)
	}
	return nil
}

// MockLoginLogRepository implements LoginLogRepository for testing
type MockLoginLogRepository struct {
	CreateFunc func(ctx context.Context, entry *models.LoginLog) error
}

func (m *MockLoginLogRepository) Create(ctx context.Context, entry *models.LoginLog) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	return nil
}

// fakeHasher prefixes instead of hashing so tests stay fast
type fakeHasher struct {
	dummyCalls int
}

func (h *fakeHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", pkgauth.ErrEmptyPassword
	}
	return "hashed:" + password, nil
}

func (h *fakeHasher) Verify(password, hash string) bool {
	return hash == "hashed:"+password
}

func (h *fakeHasher) VerifyDummy(password string) bool {
	h.dummyCalls++
	return false
}

// MockSessionRegistry implements SessionRegistry for testing
type MockSessionRegistry struct {
	IssueFunc     func(ctx context.Context, principalID int64) (string, error)
	RevokeFunc    func(ctx context.Context, token string) error
	RevokeAllFunc func(ctx context.Context, principalID int64) (int64, error)
}

func (m *MockSessionRegistry) Issue(ctx context.Context, principalID int64) (string, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, principalID)
	}
	return "token", nil
}

func (m *MockSessionRegistry) Revoke(ctx context.Context, token string) error {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, token)
	}
	return nil
}

func (m *MockSessionRegistry) RevokeAll(ctx context.Context, principalID int64) (int64, error) {
	if m.RevokeAllFunc != nil {
		return m.RevokeAllFunc(ctx, principalID)
	}
	return 0, nil
}

// MockGroupSource implements auth.GroupSource for testing
type MockGroupSource struct {
	GetByIDFunc func(ctx context.Context, id int64) (*models.UserGroup, error)
}

func (m *MockGroupSource) GetByID(ctx context.Context, id int64) (*models.UserGroup, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return &models.UserGroup{ID: id, Name: "admin", IsActive: models.FlagOn}, nil
}

// MockSearcher implements Searcher for testing
type MockSearcher struct {
	SearchFunc func(ctx context.Context, entity string, filter query.SearchFilter) (*query.Result, error)
}

func (m *MockSearcher) Search(ctx context.Context, entity string, filter query.SearchFilter) (*query.Result, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, entity, filter)
	}
	return query.RowsResult(nil), nil
}

// MockMailer implements Mailer for testing
type MockMailer struct {
	SendPasswordResetFunc func(ctx context.Context, to, name, tempPassword string) error
}

func (m *MockMailer) SendPasswordReset(ctx context.Context, to, name, tempPassword string) error {
	if m.SendPasswordResetFunc != nil {
		return m.SendPasswordResetFunc(ctx, to, name, tempPassword)
	}
	return nil
}

// MockUploader implements storage.ImageUploader for testing
type MockUploader struct {
	UploadFunc func(ctx context.Context, key string, data []byte, contentType string) error
}

func (m *MockUploader) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, key, data, contentType)
	}
	return nil
}

// memoryTokenStore implements auth.TokenStore for tests that exercise the
// real registry
type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]models.AccessToken
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: map[string]models.AccessToken{}}
}

func (s *memoryTokenStore) Save(ctx context.Context, token *models.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.TokenHash] = *token
	return nil
}

func (s *memoryTokenStore) Lookup(ctx context.Context, tokenHash string) (*models.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &t, nil
}

func (s *memoryTokenStore) Delete(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenHash)
	return nil
}

func (s *memoryTokenStore) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, t := range s.tokens {
		if t.UserID == userID {
			delete(s.tokens, hash)
			n++
		}
	}
	return n, nil
}

const testSecret = "test-secret-with-enough-length-1234"

// newTestUser returns a live user in an active group whose password is
// "password123" under fakeHasher
func newTestUser(id int64, username string) *models.User {
	return &models.User{
		ID:           id,
		UserGroupID:  1,
		Username:     username,
		PasswordHash: "hashed:password123",
		FirstName:    "Test",
		LastName:     "User",
		Email:        username + "@example.com",
		DeleteFlag:   models.FlagOff,
		IsActive:     models.FlagOn,
		CreatedDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Group:        &models.UserGroup{ID: 1, Name: "admin", IsActive: models.FlagOn},
	}
}

type testDeps struct {
	users     *MockUserRepository
	loginLogs *MockLoginLogRepository
	hasher    *fakeHasher
	sessions  *MockSessionRegistry
	groups    *MockGroupSource
	search    *MockSearcher
	mailer    *MockMailer
	uploader  *MockUploader
}

func newTestDeps() *testDeps {
	return &testDeps{
		users:     &MockUserRepository{},
		loginLogs: &MockLoginLogRepository{},
		hasher:    &fakeHasher{},
		sessions:  &MockSessionRegistry{},
		groups:    &MockGroupSource{},
		search:    &MockSearcher{},
		mailer:    &MockMailer{},
		uploader:  &MockUploader{},
	}
}

func (d *testDeps) service() *AccountService {
	return NewAccountService(AccountDeps{
		Users:         d.users,
		LoginLogs:     d.loginLogs,
		Hasher:        d.hasher,
		Sessions:      d.sessions,
		Guard:         auth.NewGuard(d.groups),
		Search:        d.search,
		Mailer:        d.mailer,
		Uploader:      d.uploader,
		Logger:        discardLogger(),
		MaxImageBytes: 1 << 20,
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
