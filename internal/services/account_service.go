package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/consensus/internal/auth"
	"github.com/BradenHooton/consensus/internal/models"
	"github.com/BradenHooton/consensus/internal/query"
	"github.com/BradenHooton/consensus/internal/storage"
	pkgauth "github.com/BradenHooton/consensus/pkg/auth"
	pkglogger "github.com/BradenHooton/consensus/pkg/logger"
	"github.com/google/uuid"
)

// UserRepository defines the user persistence operations the service needs
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UsernameTaken(ctx context.Context, username string, excludeID int64) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id int64, hash string, actor *models.Principal, at time.Time) error
	SoftDelete(ctx context.Context, id int64, actor *models.Principal, at time.Time) error
}

// LoginLogRepository records successful logins
type LoginLogRepository interface {
	Create(ctx context.Context, entry *models.LoginLog) error
}

// PasswordHasher is implemented by pkg/auth.Hasher
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
	VerifyDummy(password string) bool
}

// SessionRegistry is implemented by auth.TokenRegistry
type SessionRegistry interface {
	Issue(ctx context.Context, principalID int64) (string, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, principalID int64) (int64, error)
}

// AccessGuard is implemented by auth.Guard
type AccessGuard interface {
	RequireActiveGroup(p *models.Principal) error
	ForbidSelfAction(p *models.Principal, targetID int64, action auth.Action) error
	RequireGroupExists(ctx context.Context, groupID int64) error
}

// Searcher is implemented by query.Engine
type Searcher interface {
	Search(ctx context.Context, entity string, filter query.SearchFilter) (*query.Result, error)
}

// AvatarPath is the key prefix of uploaded profile images
const AvatarPath = "user/"

// Client facing messages shared by several failure paths
const (
	msgInvalidCredentials = "invalid username or password"
	msgUserNotFound       = "user not found"
	msgResetUnavailable   = "unable to reset the password for this email"
)

// AccountDeps wires the collaborators of AccountService
type AccountDeps struct {
	Users         UserRepository
	LoginLogs     LoginLogRepository
	Hasher        PasswordHasher
	Sessions      SessionRegistry
	Guard         AccessGuard
	Search        Searcher
	Mailer        Mailer
	Uploader      storage.ImageUploader
	Timing        *auth.TimingDelay
	Logger        *slog.Logger
	Audit         *pkglogger.AuditLogger
	MaxImageBytes int
}

// AccountService runs the account lifecycle: login and logout, user
// administration, password recovery and profile edits
type AccountService struct {
	users         UserRepository
	loginLogs     LoginLogRepository
	hasher        PasswordHasher
	sessions      SessionRegistry
	guard         AccessGuard
	search        Searcher
	mailer        Mailer
	uploader      storage.ImageUploader
	timing        *auth.TimingDelay
	logger        *slog.Logger
	audit         *pkglogger.AuditLogger
	maxImageBytes int
	now           func() time.Time
}

func NewAccountService(deps AccountDeps) *AccountService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		users:         deps.Users,
		loginLogs:     deps.LoginLogs,
		hasher:        deps.Hasher,
		sessions:      deps.Sessions,
		guard:         deps.Guard,
		search:        deps.Search,
		mailer:        deps.Mailer,
		uploader:      deps.Uploader,
		timing:        deps.Timing,
		logger:        logger,
		audit:         deps.Audit,
		maxImageBytes: deps.MaxImageBytes,
		now:           time.Now,
	}
}

// ClientInfo describes the caller of a login request
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// LoginResult is returned by a successful login
type LoginResult struct {
	Token string               `json:"token"`
	User  *models.UserResponse `json:"user"`
}

// Login verifies credentials and issues a session token. Unknown usernames
// and wrong passwords fail with the same error after the same delay. The
// group check runs before any token is issued.
func (s *AccountService) Login(ctx context.Context, username, password string, client ClientInfo) (*LoginResult, error) {
	start := s.now()
	username = strings.TrimSpace(username)

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to load user for login", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.hasher.VerifyDummy(password)
		return nil, s.rejectLogin(ctx, start, 0, username, client)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, s.rejectLogin(ctx, start, user.ID, username, client)
	}

	principal := models.PrincipalFromUser(user)
	if err := s.guard.RequireActiveGroup(principal); err != nil {
		s.logger.Info("login blocked: inactive user group", slog.Int64("user_id", user.ID))
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     client.IPAddress,
			UserAgent:     client.UserAgent,
			FailureReason: "group_inactive",
		})
		return nil, err
	}

	token, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to issue session token", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.recordLogin(ctx, user, client)

	s.logger.Info("user logged in", slog.Int64("user_id", user.ID))
	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
	})

	return &LoginResult{Token: token, User: models.PublicUser(user)}, nil
}

func (s *AccountService) rejectLogin(ctx context.Context, start time.Time, userID int64, username string, client ClientInfo) error {
	s.timing.Pad(ctx, start)

	s.logger.Info("login failed: invalid credentials")
	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        userID,
		Username:      username,
		IPAddress:     client.IPAddress,
		UserAgent:     client.UserAgent,
		FailureReason: "invalid_credentials",
	})
	return models.Errorf(models.ErrUnauthenticated, msgInvalidCredentials)
}

// recordLogin writes the login log. A failure here does not fail the login.
func (s *AccountService) recordLogin(ctx context.Context, user *models.User, client ClientInfo) {
	if s.loginLogs == nil {
		return
	}
	entry := &models.LoginLog{
		UserID:      user.ID,
		Username:    user.Username,
		IPAddress:   client.IPAddress,
		UserAgent:   client.UserAgent,
		CreatedDate: s.now(),
	}
	if err := s.loginLogs.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to write login log", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
}

// Logout revokes the token of the current session. Revoking twice is fine.
func (s *AccountService) Logout(ctx context.Context, p *models.Principal, token string) error {
	if strings.TrimSpace(token) == "" {
		return models.Errorf(models.ErrUnauthenticated, "invalid token")
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		s.logger.Error("failed to revoke session token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if p != nil {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: "logout", UserID: p.ID, Success: true})
	}
	return nil
}

// LogoutAll revokes every session of the principal, including the current
// one, and returns how many were removed
func (s *AccountService) LogoutAll(ctx context.Context, p *models.Principal) (int64, error) {
	n, err := s.sessions.RevokeAll(ctx, p.ID)
	if err != nil {
		s.logger.Error("failed to revoke sessions", slog.Int64("user_id", p.ID), slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: "logout_all",
		UserID:    p.ID,
		Success:   true,
		Metadata:  map[string]string{"revoked": fmt.Sprint(n)},
	})
	return n, nil
}

// ListUsersParams are the query parameters of the user list
type ListUsersParams struct {
	Limit   int
	Offset  int
	Keyword string
	Count   bool
}

var userListFields = []string{
	"id", "userGroupId", "username", "firstName", "lastName", "email",
	"address", "phoneNumber", "avatar", "avatarPath", "createdDate",
}

// ListUsers returns live users with their group, or their count
func (s *AccountService) ListUsers(ctx context.Context, params ListUsersParams) (*query.Result, error) {
	filter := query.SearchFilter{
		Limit:    params.Limit,
		Offset:   params.Offset,
		Select:   userListFields,
		Relation: []string{"usergroup"},
		WhereConditions: []query.WhereCondition{
			{Name: "deleteFlag", Value: models.FlagOff},
		},
		Keyword: params.Keyword,
		Count:   query.CountFlag(params.Count),
	}
	return s.runSearch(ctx, query.EntityUser, filter)
}

// SearchUsers runs a caller supplied filter over users
func (s *AccountService) SearchUsers(ctx context.Context, filter query.SearchFilter) (*query.Result, error) {
	return s.runSearch(ctx, query.EntityUser, filter)
}

// SearchLoginLogs runs a caller supplied filter over the login log
func (s *AccountService) SearchLoginLogs(ctx context.Context, filter query.SearchFilter) (*query.Result, error) {
	return s.runSearch(ctx, query.EntityLoginLog, filter)
}

// SearchProposals runs a caller supplied filter over proposals
func (s *AccountService) SearchProposals(ctx context.Context, filter query.SearchFilter) (*query.Result, error) {
	return s.runSearch(ctx, query.EntityProposal, filter)
}

func (s *AccountService) runSearch(ctx context.Context, entity string, filter query.SearchFilter) (*query.Result, error) {
	result, err := s.search.Search(ctx, entity, filter)
	if err != nil {
		if models.IsDomainError(err) {
			return nil, err
		}
		s.logger.Error("search failed", slog.String("entity", entity), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return result, nil
}

// CreateUserInput holds the fields of a new account
type CreateUserInput struct {
	UserGroupID int64
	Username    string
	Password    string
	FirstName   string
	LastName    string
	Email       string
	Address     string
	PhoneNumber string
}

// CreateUser validates the group and username, hashes the password and
// persists a live, active account attributed to actor
func (s *AccountService) CreateUser(ctx context.Context, actor *models.Principal, in CreateUserInput) (*models.User, error) {
	if err := s.checkGroup(ctx, in.UserGroupID); err != nil {
		return nil, err
	}
	if err := s.checkUsername(ctx, in.Username, 0); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword("password", in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		UserGroupID:  in.UserGroupID,
		Username:     in.Username,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Address:      in.Address,
		PhoneNumber:  in.PhoneNumber,
		DeleteFlag:   models.FlagOff,
		IsActive:     models.FlagOn,
	}
	models.StampCreated(user, actor, s.now())

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, usernameTaken(in.Username)
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user created", slog.Int64("user_id", user.ID))
	s.audit.LogAccountAction(ctx, "user_created", actorID(actor), user.ID, nil)
	return user, nil
}

// UpdateUserInput holds the administrative update of an account. An empty
// Password keeps the stored hash. Nil optional fields are left unchanged.
type UpdateUserInput struct {
	UserGroupID int64
	Username    string
	Password    string
	FirstName   string
	LastName    string
	Email       string
	Address     *string
	PhoneNumber *string
}

// UpdateUser edits another user's account. Editing the caller's own account
// through this path is forbidden.
func (s *AccountService) UpdateUser(ctx context.Context, actor *models.Principal, id int64, in UpdateUserInput) error {
	if err := s.guard.ForbidSelfAction(actor, id, auth.ActionEdit); err != nil {
		return err
	}

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkGroup(ctx, in.UserGroupID); err != nil {
		return err
	}
	if err := s.checkUsername(ctx, in.Username, id); err != nil {
		return err
	}

	if in.Password != "" {
		hash, err := s.hashPassword("password", in.Password)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
	}

	user.UserGroupID = in.UserGroupID
	user.Username = in.Username
	user.FirstName = in.FirstName
	user.LastName = in.LastName
	user.Email = in.Email
	if in.Address != nil {
		user.Address = *in.Address
	}
	if in.PhoneNumber != nil {
		user.PhoneNumber = *in.PhoneNumber
	}
	user.IsActive = models.FlagOn
	models.StampModified(user, actor, s.now())

	if err := s.saveUser(ctx, user); err != nil {
		return err
	}

	s.logger.Info("user updated", slog.Int64("user_id", id))
	s.audit.LogAccountAction(ctx, "user_updated", actorID(actor), id, nil)
	return nil
}

// DeleteUser soft deletes an account and then revokes its sessions. The
// user row is committed first; a deleted user no longer resolves even if
// revocation fails.
func (s *AccountService) DeleteUser(ctx context.Context, actor *models.Principal, id int64) error {
	if err := s.guard.ForbidSelfAction(actor, id, auth.ActionDelete); err != nil {
		return err
	}

	if err := s.users.SoftDelete(ctx, id, actor, s.now()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Errorf(models.ErrNotFound, msgUserNotFound)
		}
		s.logger.Error("failed to delete user", slog.Int64("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	revoked, err := s.sessions.RevokeAll(ctx, id)
	if err != nil {
		s.logger.Warn("failed to revoke sessions of deleted user", slog.Int64("user_id", id), slog.Any("error", err))
	}

	s.logger.Info("user deleted", slog.Int64("user_id", id), slog.Int64("sessions_revoked", revoked))
	s.audit.LogAccountAction(ctx, "user_deleted", actorID(actor), id, nil)
	return nil
}

// ForgotPassword replaces the password of the account registered with email
// by a temporary one and mails it. An unknown email and a delivery failure
// produce the same error.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email",
				slog.String("email", pkglogger.SanitizedEmail(email)))
			return models.Errorf(models.ErrNotFound, msgResetUnavailable)
		}
		s.logger.Error("failed to load user for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	temp, err := pkgauth.GenerateTemporaryPassword(pkgauth.TempPasswordLen)
	if err != nil {
		s.logger.Error("failed to generate temporary password", slog.Any("error", err))
		return models.ErrInternalServer
	}
	hash, err := s.hasher.Hash(temp)
	if err != nil {
		s.logger.Error("failed to hash temporary password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash, nil, s.now()); err != nil {
		s.logger.Error("failed to store temporary password", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.FirstName, temp); err != nil {
		s.audit.LogPasswordChange(ctx, user.ID, "reset", false)
		return models.Errorf(models.ErrNotFound, msgResetUnavailable)
	}

	s.audit.LogPasswordChange(ctx, user.ID, "reset", true)
	return nil
}

// ChangePassword rotates the principal's password. The new password must
// differ from the old one, and the old one must verify.
func (s *AccountService) ChangePassword(ctx context.Context, p *models.Principal, oldPassword, newPassword string) error {
	if oldPassword == newPassword {
		return models.NewValidationError("newPassword", "must differ from the existing password")
	}

	user, err := s.loadUser(ctx, p.ID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(oldPassword, user.PasswordHash) {
		s.audit.LogPasswordChange(ctx, p.ID, "change", false)
		return models.Errorf(models.ErrUnauthenticated, "your old password is wrong")
	}

	hash, err := s.hashPassword("newPassword", newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePassword(ctx, p.ID, hash, p, s.now()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Errorf(models.ErrNotFound, msgUserNotFound)
		}
		s.logger.Error("failed to update password", slog.Int64("user_id", p.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogPasswordChange(ctx, p.ID, "change", true)
	return nil
}

// EditProfileInput holds the self-service profile fields. Avatar is an
// optional data:image URI.
type EditProfileInput struct {
	Username    string
	Email       string
	PhoneNumber string
	Address     string
	Avatar      string
}

// EditProfile updates the principal's own record. It is never subject to
// the self-action guard.
func (s *AccountService) EditProfile(ctx context.Context, p *models.Principal, in EditProfileInput) (*models.User, error) {
	user, err := s.loadUser(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	if in.Username != user.Username {
		if err := s.checkUsername(ctx, in.Username, user.ID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if in.Avatar != "" {
		img, err := storage.DecodeDataURI(in.Avatar, s.maxImageBytes)
		if err != nil {
			return nil, err
		}

		name := "Img_" + uuid.NewString() + "." + img.Ext
		if err := s.uploader.Upload(ctx, AvatarPath+name, img.Data, img.ContentType); err != nil {
			s.logger.Error("failed to upload avatar", slog.Int64("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		user.Avatar = name
		user.AvatarPath = AvatarPath
	}

	user.Username = in.Username
	user.Email = in.Email
	user.PhoneNumber = in.PhoneNumber
	user.Address = in.Address
	models.StampModified(user, p, now)

	if err := s.saveUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("profile updated", slog.Int64("user_id", user.ID))
	return user, nil
}

func (s *AccountService) loadUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.Errorf(models.ErrNotFound, msgUserNotFound)
		}
		s.logger.Error("failed to get user", slog.Int64("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

func (s *AccountService) saveUser(ctx context.Context, user *models.User) error {
	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return models.Errorf(models.ErrNotFound, msgUserNotFound)
		case errors.Is(err, models.ErrConflict):
			return usernameTaken(user.Username)
		}
		s.logger.Error("failed to update user", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	return nil
}

func (s *AccountService) checkGroup(ctx context.Context, groupID int64) error {
	err := s.guard.RequireGroupExists(ctx, groupID)
	if err == nil || models.IsDomainError(err) {
		return err
	}
	s.logger.Error("failed to check user group", slog.Int64("group_id", groupID), slog.Any("error", err))
	return models.ErrInternalServer
}

// checkUsername fails with a conflict when a live account other than
// excludeID holds username
func (s *AccountService) checkUsername(ctx context.Context, username string, excludeID int64) error {
	if strings.TrimSpace(username) == "" {
		return models.NewValidationError("username", "is required")
	}

	taken, err := s.users.UsernameTaken(ctx, username, excludeID)
	if err != nil {
		s.logger.Error("failed to check username", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if taken {
		return usernameTaken(username)
	}
	return nil
}

func (s *AccountService) hashPassword(field, password string) (string, error) {
	hash, err := s.hasher.Hash(password)
	switch {
	case errors.Is(err, pkgauth.ErrEmptyPassword):
		return "", models.NewValidationError(field, "is required")
	case errors.Is(err, pkgauth.ErrPasswordTooLong):
		return "", models.NewValidationError(field, err.Error())
	case err != nil:
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	return hash, nil
}

func usernameTaken(username string) error {
	return models.Errorf(models.ErrConflict, "username %q is already taken", username)
}

func actorID(p *models.Principal) int64 {
	if p == nil {
		return 0
	}
	return p.ID
}
