package auth

import (
	"context"
	"sync"

	"github.com/BradenHooton/consensus/internal/models"
)

// memoryStore is an in-memory TokenStore
type memoryStore struct {
	mu      sync.Mutex
	records map[string]*models.AccessToken

	LookupErr error
	SaveErr   error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*models.AccessToken)}
}

func (m *memoryStore) Save(ctx context.Context, token *models.AccessToken) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *token
	m.records[token.TokenHash] = &copied
	return nil
}

func (m *memoryStore) Lookup(ctx context.Context, tokenHash string) (*models.AccessToken, error) {
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rec, nil
}

func (m *memoryStore) Delete(ctx context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, tokenHash)
	return nil
}

func (m *memoryStore) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, rec := range m.records {
		if rec.UserID == userID {
			delete(m.records, hash)
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// MockUserSource implements PrincipalSource
type MockUserSource struct {
	GetByIDFunc func(ctx context.Context, id int64) (*models.User, error)
}

func (m *MockUserSource) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

// MockGroupSource implements GroupSource
type MockGroupSource struct {
	GetByIDFunc func(ctx context.Context, id int64) (*models.UserGroup, error)
}

func (m *MockGroupSource) GetByID(ctx context.Context, id int64) (*models.UserGroup, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func liveUser(id int64, groupActive bool) *models.User {
	active := models.FlagOff
	if groupActive {
		active = models.FlagOn
	}
	return &models.User{
		ID:          id,
		UserGroupID: 7,
		Username:    "alice",
		IsActive:    models.FlagOn,
		Group:       &models.UserGroup{ID: 7, Name: "admins", IsActive: active},
	}
}
