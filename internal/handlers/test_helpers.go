package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/consensus/internal/auth"
	"github.com/BradenHooton/consensus/internal/models"
	"github.com/BradenHooton/consensus/internal/query"
	"github.com/BradenHooton/consensus/internal/services"
	pkghttp "github.com/BradenHooton/consensus/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithPrincipalContext attaches an authenticated principal and its token as
// the Authenticate middleware would
func WithPrincipalContext(req *http.Request, p *models.Principal, token string) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p, token))
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// TestEnvelope mirrors pkghttp.Envelope with raw data for assertions
type TestEnvelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// AssertEnvelope checks the status code and envelope status and returns the
// decoded envelope
func AssertEnvelope(t *testing.T, w *httptest.ResponseRecorder, expectedCode, expectedStatus int) TestEnvelope {
	t.Helper()
	assert.Equal(t, expectedCode, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var env TestEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "Failed to decode envelope")
	assert.Equal(t, expectedStatus, env.Status, "Envelope status mismatch")
	return env
}

// AssertFailure checks a 400 failure envelope carrying message
func AssertFailure(t *testing.T, w *httptest.ResponseRecorder, message string) TestEnvelope {
	t.Helper()
	env := AssertEnvelope(t, w, http.StatusBadRequest, pkghttp.StatusFailure)
	if message != "" {
		assert.Equal(t, message, env.Message)
	}
	return env
}

// MockAccountService implements AccountService for testing
type MockAccountService struct {
	LoginFunc          func(ctx context.Context, username, password string, client services.ClientInfo) (*services.LoginResult, error)
	LogoutFunc         func(ctx context.Context, p *models.Principal, token string) error
	LogoutAllFunc      func(ctx context.Context, p *models.Principal) (int64, error)
	ListUsersFunc      func(ctx context.Context, params services.ListUsersParams) (*query.Result, error)
	CreateUserFunc     func(ctx context.Context, actor *models.Principal, in services.CreateUserInput) (*models.User, error)
	UpdateUserFunc     func(ctx context.Context, actor *models.Principal, id int64, in services.UpdateUserInput) error
	DeleteUserFunc     func(ctx context.Context, actor *models.Principal, id int64) error
	ForgotPasswordFunc func(ctx context.Context, email string) error
	ChangePasswordFunc func(ctx context.Context, p *models.Principal, oldPassword, newPassword string) error
	EditProfileFunc    func(ctx context.Context, p *models.Principal, in services.EditProfileInput) (*models.User, error)
}

func (m *MockAccountService) Login(ctx context.Context, username, password string, client services.ClientInfo) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthenticated
	}
	return m.LoginFunc(ctx, username, password, client)
}

func (m *MockAccountService) Logout(ctx context.Context, p *models.Principal, token string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, p, token)
}

func (m *MockAccountService) LogoutAll(ctx context.Context, p *models.Principal) (int64, error) {
	if m.LogoutAllFunc == nil {
		return 0, nil
	}
	return m.LogoutAllFunc(ctx, p)
}

func (m *MockAccountService) ListUsers(ctx context.Context, params services.ListUsersParams) (*query.Result, error) {
	if m.ListUsersFunc == nil {
		return query.RowsResult(nil), nil
	}
	return m.ListUsersFunc(ctx, params)
}

func (m *MockAccountService) CreateUser(ctx context.Context, actor *models.Principal, in services.CreateUserInput) (*models.User, error) {
	if m.CreateUserFunc == nil {
		return nil, models.ErrConflict
	}
	return m.CreateUserFunc(ctx, actor, in)
}

func (m *MockAccountService) UpdateUser(ctx context.Context, actor *models.Principal, id int64, in services.UpdateUserInput) error {
	if m.UpdateUserFunc == nil {
		return nil
	}
	return m.UpdateUserFunc(ctx, actor, id, in)
}

func (m *MockAccountService) DeleteUser(ctx context.Context, actor *models.Principal, id int64) error {
	if m.DeleteUserFunc == nil {
		return nil
	}
	return m.DeleteUserFunc(ctx, actor, id)
}

func (m *MockAccountService) ForgotPassword(ctx context.Context, email string) error {
	if m.ForgotPasswordFunc == nil {
		return nil
	}
	return m.ForgotPasswordFunc(ctx, email)
}

func (m *MockAccountService) ChangePassword(ctx context.Context, p *models.Principal, oldPassword, newPassword string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, p, oldPassword, newPassword)
}

func (m *MockAccountService) EditProfile(ctx context.Context, p *models.Principal, in services.EditProfileInput) (*models.User, error) {
	if m.EditProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.EditProfileFunc(ctx, p, in)
}

// MockSearchService implements SearchService for testing
type MockSearchService struct {
	SearchUsersFunc     func(ctx context.Context, filter query.SearchFilter) (*query.Result, error)
	SearchLoginLogsFunc func(ctx context.Context, filter query.SearchFilter) (*query.Result, error)
	SearchProposalsFunc func(ctx context.Context, filter query.SearchFilter) (*query.Result, error)
}

func (m *MockSearchService) SearchUsers(ctx context.Context, filter query.SearchFilter) (*query.Result, error) {
	if m.SearchUsersFunc == nil {
		return query.RowsResult(nil), nil
	}
	return m.SearchUsersFunc(ctx, filter)
}

func (m *MockSearchService) SearchLoginLogs(ctx context.Context, filter query.SearchFilter) (*query.Result, error) {
	if m.SearchLoginLogsFunc == nil {
		return query.RowsResult(nil), nil
	}
	return m.SearchLoginLogsFunc(ctx, filter)
}

func (m *MockSearchService) SearchProposals(ctx context.Context, filter query.SearchFilter) (*query.Result, error) {
	if m.SearchProposalsFunc == nil {
		return query.RowsResult(nil), nil
	}
	return m.SearchProposalsFunc(ctx, filter)
}

// LoginCounter records observed login outcomes
type LoginCounter struct {
	Outcomes []string
}

func (c *LoginCounter) ObserveLogin(outcome string) {
	c.Outcomes = append(c.Outcomes, outcome)
}
