package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/consensus/internal/handlers"
	"github.com/BradenHooton/consensus/internal/models"
	"github.com/BradenHooton/consensus/internal/query"
	"github.com/BradenHooton/consensus/internal/services"
	pkghttp "github.com/BradenHooton/consensus/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var admin = &models.Principal{ID: 1, Username: "admin", GroupID: 1, GroupActive: true}

func testUser(id int64, username string) *models.User {
	return &models.User{
		ID:          id,
		UserGroupID: 2,
		Username:    username,
		FirstName:   "Test",
		Email:       username + "@example.com",
		IsActive:    models.FlagOn,
		CreatedDate: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Group:       &models.UserGroup{ID: 2, Name: "staff", IsActive: models.FlagOn},
	}
}

func TestLogin_Success(t *testing.T) {
	var gotClient services.ClientInfo
	counter := &handlers.LoginCounter{}
	mockAccounts := &handlers.MockAccountService{
		LoginFunc: func(ctx context.Context, username, password string, client services.ClientInfo) (*services.LoginResult, error) {
			assert.Equal(t, "alice", username)
			assert.Equal(t, "password123", password)
			gotClient = client
			return &services.LoginResult{Token: "jwt-token", User: models.PublicUser(testUser(7, "alice"))}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, counter, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "alice",
		Password: "password123",
	})
	req.Header.Set("User-Agent", "test-agent")

	w := httptest.NewRecorder()
	handler.Login(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusOK, pkghttp.StatusSuccess)
	assert.Equal(t, "Loggedin successful", env.Message)

	var data struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "jwt-token", data.Token)
	assert.Equal(t, "alice", data.User["username"])
	assert.NotContains(t, data.User, "password")

	assert.Equal(t, "192.0.2.1", gotClient.IPAddress)
	assert.Equal(t, "test-agent", gotClient.UserAgent)
	assert.Equal(t, []string{handlers.LoginSucceeded}, counter.Outcomes)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	counter := &handlers.LoginCounter{}
	mockAccounts := &handlers.MockAccountService{
		LoginFunc: func(ctx context.Context, username, password string, client services.ClientInfo) (*services.LoginResult, error) {
			return nil, models.Errorf(models.ErrUnauthenticated, "invalid username or password")
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, counter, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "alice",
		Password: "wrong",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	env := handlers.AssertFailure(t, w, "invalid username or password")
	assert.Empty(t, env.Data)
	assert.Equal(t, []string{handlers.LoginRejected}, counter.Outcomes)
}

func TestLogin_InactiveGroup(t *testing.T) {
	counter := &handlers.LoginCounter{}
	mockAccounts := &handlers.MockAccountService{
		LoginFunc: func(ctx context.Context, username, password string, client services.ClientInfo) (*services.LoginResult, error) {
			return nil, models.Errorf(models.ErrForbidden, "your user group is inactive")
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, counter, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "alice",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertFailure(t, w, "your user group is inactive")
	assert.Equal(t, []string{handlers.LoginForbidden}, counter.Outcomes)
}

func TestLogin_ValidationError(t *testing.T) {
	called := false
	counter := &handlers.LoginCounter{}
	mockAccounts := &handlers.MockAccountService{
		LoginFunc: func(ctx context.Context, username, password string, client services.ClientInfo) (*services.LoginResult, error) {
			called = true
			return nil, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, counter, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", map[string]string{})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	env := handlers.AssertFailure(t, w, "")
	var fields map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &fields))
	assert.Equal(t, "this field is required", fields["username"])
	assert.Equal(t, "this field is required", fields["password"])
	assert.False(t, called)
	assert.Empty(t, counter.Outcomes)
}

func TestLogin_InvalidJSON(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAccountService{}, nil, nil, nil)
	req := httptest.NewRequest("POST", "/auth/login", strings.NewReader("{not json"))

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertFailure(t, w, "invalid body: invalid JSON request body")
}

func TestLogin_InternalError(t *testing.T) {
	counter := &handlers.LoginCounter{}
	mockAccounts := &handlers.MockAccountService{
		LoginFunc: func(ctx context.Context, username, password string, client services.ClientInfo) (*services.LoginResult, error) {
			return nil, errors.New("connection refused")
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, counter, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Username: "alice",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusInternalServerError, pkghttp.StatusFailure)
	assert.Equal(t, "internal server error", env.Message)
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.Equal(t, []string{handlers.LoginErrored}, counter.Outcomes)
}

func TestLogout_UsesContextToken(t *testing.T) {
	var gotToken string
	var gotPrincipal *models.Principal
	mockAccounts := &handlers.MockAccountService{
		LogoutFunc: func(ctx context.Context, p *models.Principal, token string) error {
			gotPrincipal = p
			gotToken = token
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/logout", nil)
	req = handlers.WithPrincipalContext(req, admin, "the-token")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusOK, pkghttp.StatusSuccess)
	assert.Equal(t, "Successfully Logout", env.Message)
	assert.Equal(t, "the-token", gotToken)
	assert.Equal(t, admin, gotPrincipal)
}

func TestLogoutAll_ReportsRevokedCount(t *testing.T) {
	mockAccounts := &handlers.MockAccountService{
		LogoutAllFunc: func(ctx context.Context, p *models.Principal) (int64, error) {
			return 3, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.WithPrincipalContext(handlers.NewTestRequest(t, "POST", "/auth/logout-all", nil), admin, "t")

	w := httptest.NewRecorder()
	handler.LogoutAll(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusOK, pkghttp.StatusSuccess)
	assert.JSONEq(t, `{"revoked":3}`, string(env.Data))
}

func TestUserList_ParsesQuery(t *testing.T) {
	var got services.ListUsersParams
	mockAccounts := &handlers.MockAccountService{
		ListUsersFunc: func(ctx context.Context, params services.ListUsersParams) (*query.Result, error) {
			got = params
			return query.CountResult(12), nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/userlist?limit=10&offset=20&keyword=%20ali%20&count=1", nil)
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.UserList(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusOK, pkghttp.StatusSuccess)
	assert.Equal(t, "Successfully get All user List", env.Message)
	assert.JSONEq(t, `12`, string(env.Data))
	assert.Equal(t, services.ListUsersParams{Limit: 10, Offset: 20, Keyword: "ali", Count: true}, got)
}

func TestUserList_RowsResult(t *testing.T) {
	mockAccounts := &handlers.MockAccountService{
		ListUsersFunc: func(ctx context.Context, params services.ListUsersParams) (*query.Result, error) {
			assert.False(t, params.Count)
			return query.RowsResult([]map[string]any{{"id": 7, "username": "alice"}}), nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/userlist", nil)

	w := httptest.NewRecorder()
	handler.UserList(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusOK, pkghttp.StatusSuccess)
	assert.JSONEq(t, `[{"id":7,"username":"alice"}]`, string(env.Data))
}

func TestUserList_BadLimit(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAccountService{}, nil, nil, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/userlist?limit=ten", nil)

	w := httptest.NewRecorder()
	handler.UserList(w, req)

	handlers.AssertFailure(t, w, "invalid limit: must be an integer")
}

func TestUserList_BadCount(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAccountService{}, nil, nil, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/userlist?count=yes", nil)

	w := httptest.NewRecorder()
	handler.UserList(w, req)

	handlers.AssertFailure(t, w, "invalid count: must be a boolean or a number")
}

func TestCreateUser_Success(t *testing.T) {
	var got services.CreateUserInput
	mockAccounts := &handlers.MockAccountService{
		CreateUserFunc: func(ctx context.Context, actor *models.Principal, in services.CreateUserInput) (*models.User, error) {
			assert.Equal(t, admin, actor)
			got = in
			u := testUser(100, in.Username)
			u.PasswordHash = "$2a$10$secret"
			return u, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/create-user", handlers.CreateUserRequest{
		UserGroupID: 2,
		Username:    " bob ",
		Password:    "password123",
		FirstName:   "Bob",
		Email:       "bob@example.com",
	})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.CreateUser(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusOK, pkghttp.StatusSuccess)
	assert.Equal(t, "User saved successfully", env.Message)
	assert.Equal(t, "bob", got.Username)
	assert.NotContains(t, string(env.Data), "secret")

	var user map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, float64(100), user["id"])
}

func TestCreateUser_ValidationError(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAccountService{}, nil, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/create-user", map[string]any{
		"username": "bob",
		"password": "password123",
		"email":    "not-an-email",
	})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.CreateUser(w, req)

	env := handlers.AssertFailure(t, w, "")
	var fields map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &fields))
	assert.Equal(t, "this field is required", fields["userGroupId"])
	assert.Equal(t, "this field is required", fields["firstName"])
	assert.Equal(t, "must be a valid email address", fields["email"])
}

func TestCreateUser_UsernameTaken(t *testing.T) {
	mockAccounts := &handlers.MockAccountService{
		CreateUserFunc: func(ctx context.Context, actor *models.Principal, in services.CreateUserInput) (*models.User, error) {
			return nil, models.Errorf(models.ErrConflict, "username already taken")
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/create-user", handlers.CreateUserRequest{
		UserGroupID: 2,
		Username:    "bob",
		Password:    "password123",
		FirstName:   "Bob",
		Email:       "bob@example.com",
	})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.CreateUser(w, req)

	handlers.AssertFailure(t, w, "username already taken")
}

func TestUpdateUser_PassesPathID(t *testing.T) {
	var gotID int64
	var got services.UpdateUserInput
	mockAccounts := &handlers.MockAccountService{
		UpdateUserFunc: func(ctx context.Context, actor *models.Principal, id int64, in services.UpdateUserInput) error {
			gotID = id
			got = in
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "PUT", "/auth/update-user/42", map[string]any{
		"userGroupId": 2,
		"username":    "carol",
		"firstName":   "Carol",
		"email":       "carol@example.com",
		"address":     "1 Main St",
	})
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "42"})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.UpdateUser(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusOK, pkghttp.StatusSuccess)
	assert.Equal(t, "User updated successfully", env.Message)
	assert.Equal(t, int64(42), gotID)
	assert.Empty(t, got.Password)
	require.NotNil(t, got.Address)
	assert.Equal(t, "1 Main St", *got.Address)
	assert.Nil(t, got.PhoneNumber)
}

func TestUpdateUser_InvalidID(t *testing.T) {
	called := false
	mockAccounts := &handlers.MockAccountService{
		UpdateUserFunc: func(ctx context.Context, actor *models.Principal, id int64, in services.UpdateUserInput) error {
			called = true
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "PUT", "/auth/update-user/abc", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "abc"})

	w := httptest.NewRecorder()
	handler.UpdateUser(w, req)

	handlers.AssertFailure(t, w, "invalid id: must be a positive integer")
	assert.False(t, called)
}

func TestUpdateUser_SelfBeforeValidation(t *testing.T) {
	called := false
	mockAccounts := &handlers.MockAccountService{
		UpdateUserFunc: func(ctx context.Context, actor *models.Principal, id int64, in services.UpdateUserInput) error {
			called = true
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "PUT", "/auth/update-user/1", map[string]any{"userGroupId": 0})
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "1"})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.UpdateUser(w, req)

	handlers.AssertFailure(t, w, "you cannot edit your own account")
	assert.False(t, called)
}

func TestUpdateUser_InvalidBodyForOtherUser(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAccountService{}, nil, nil, nil)
	req := handlers.NewTestRequest(t, "PUT", "/auth/update-user/2", map[string]any{"userGroupId": 0})
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "2"})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.UpdateUser(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusBadRequest, pkghttp.StatusFailure)
	assert.Contains(t, env.Message, "userGroupId")
}

func TestDeleteUser_Self(t *testing.T) {
	mockAccounts := &handlers.MockAccountService{
		DeleteUserFunc: func(ctx context.Context, actor *models.Principal, id int64) error {
			if actor.ID == id {
				return models.Errorf(models.ErrForbidden, "you cannot delete your own account")
			}
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "DELETE", "/auth/delete-user/1", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "1"})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.DeleteUser(w, req)

	handlers.AssertFailure(t, w, "you cannot delete your own account")
}

func TestDeleteUser_Success(t *testing.T) {
	var gotID int64
	mockAccounts := &handlers.MockAccountService{
		DeleteUserFunc: func(ctx context.Context, actor *models.Principal, id int64) error {
			gotID = id
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "DELETE", "/auth/delete-user/9", nil)
	req = handlers.WithChiRouteContext(req, map[string]string{"id": "9"})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.DeleteUser(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusOK, pkghttp.StatusSuccess)
	assert.Equal(t, "User Deleted successfully", env.Message)
	assert.Equal(t, int64(9), gotID)
}

func TestForgotPassword(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		status  int
		message string
	}{
		{"sent", nil, http.StatusOK, pkghttp.StatusSuccess, "Your password has been sent to your email inbox."},
		{"unknown email", models.Errorf(models.ErrNotFound, "unable to reset the password for this email"), http.StatusBadRequest, pkghttp.StatusFailure, "unable to reset the password for this email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAccounts := &handlers.MockAccountService{
				ForgotPasswordFunc: func(ctx context.Context, email string) error {
					assert.Equal(t, "alice@example.com", email)
					return tt.err
				},
			}

			handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
			req := handlers.NewTestRequest(t, "POST", "/auth/forgot-password", handlers.ForgotPasswordRequest{
				Email: "alice@example.com",
			})

			w := httptest.NewRecorder()
			handler.ForgotPassword(w, req)

			env := handlers.AssertEnvelope(t, w, tt.code, tt.status)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	mockAccounts := &handlers.MockAccountService{
		ChangePasswordFunc: func(ctx context.Context, p *models.Principal, oldPassword, newPassword string) error {
			assert.Equal(t, "old", oldPassword)
			assert.Equal(t, "new-password", newPassword)
			return models.Errorf(models.ErrUnauthenticated, "your old password is wrong")
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "PUT", "/auth/change-password", handlers.ChangePasswordRequest{
		OldPassword: "old",
		NewPassword: "new-password",
	})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.ChangePassword(w, req)

	handlers.AssertFailure(t, w, "your old password is wrong")
}

func TestEditProfile_Success(t *testing.T) {
	var got services.EditProfileInput
	mockAccounts := &handlers.MockAccountService{
		EditProfileFunc: func(ctx context.Context, p *models.Principal, in services.EditProfileInput) (*models.User, error) {
			got = in
			u := testUser(p.ID, in.Username)
			u.Avatar = "Img_1.png"
			u.AvatarPath = "user/"
			return u, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/edit-profile", handlers.EditProfileRequest{
		Username: "admin",
		Email:    "admin@example.com",
		Avatar:   "data:image/png;base64,iVBORw0KGgo=",
	})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.EditProfile(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusOK, pkghttp.StatusSuccess)
	assert.Equal(t, "Successfully updated profile", env.Message)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", got.Avatar)

	var user map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "Img_1.png", user["avatar"])
}

func TestEditProfile_UploadFailure(t *testing.T) {
	mockAccounts := &handlers.MockAccountService{
		EditProfileFunc: func(ctx context.Context, p *models.Principal, in services.EditProfileInput) (*models.User, error) {
			return nil, models.ErrInternalServer
		},
	}

	handler := handlers.NewAuthHandler(mockAccounts, nil, nil, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/edit-profile", handlers.EditProfileRequest{
		Username: "admin",
		Email:    "admin@example.com",
	})
	req = handlers.WithPrincipalContext(req, admin, "t")

	w := httptest.NewRecorder()
	handler.EditProfile(w, req)

	env := handlers.AssertEnvelope(t, w, http.StatusInternalServerError, pkghttp.StatusFailure)
	assert.Equal(t, "internal server error", env.Message)
}
