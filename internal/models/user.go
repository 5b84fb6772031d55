package models

import (
	"time"
)

// Flag values shared by delete_flag and is_active columns
const (
	FlagOff = 0
	FlagOn  = 1
)

type User struct {
	ID                 int64
	UserGroupID        int64
	Username           string
	PasswordHash       string // never serialized, see PublicUser
	FirstName          string
	LastName           string
	Email              string
	Address            string
	PhoneNumber        string
	Avatar             string
	AvatarPath         string
	DeleteFlag         int
	IsActive           int
	CreatedBy          *int64
	CreatedByUsername  string
	ModifiedBy         *int64
	ModifiedByUsername string
	CreatedDate        time.Time
	ModifiedDate       *time.Time

	// Group is populated when the repository joins user_groups
	Group *UserGroup
}

// IsLive reports whether the account has not been soft deleted
func (u *User) IsLive() bool {
	return u.DeleteFlag == FlagOff
}

type UserGroup struct {
	ID           int64
	Name         string
	Description  string
	IsActive     int
	CreatedDate  time.Time
	ModifiedDate *time.Time
}

// Active reports whether members of the group may log in
func (g *UserGroup) Active() bool {
	return g != nil && g.IsActive != FlagOff
}

// Principal is the identity attached to an authenticated request
type Principal struct {
	ID          int64
	Username    string
	GroupID     int64
	GroupActive bool
}

// PrincipalFromUser builds a principal from a user loaded with its group
func PrincipalFromUser(u *User) *Principal {
	return &Principal{
		ID:          u.ID,
		Username:    u.Username,
		GroupID:     u.UserGroupID,
		GroupActive: u.Group.Active(),
	}
}

// UserResponse is the sanitized outward projection of a user
type UserResponse struct {
	ID                int64              `json:"id"`
	UserGroupID       int64              `json:"userGroupId"`
	Username          string             `json:"username"`
	FirstName         string             `json:"firstName"`
	LastName          string             `json:"lastName"`
	Email             string             `json:"email"`
	Address           string             `json:"address"`
	PhoneNumber       string             `json:"phoneNumber"`
	Avatar            string             `json:"avatar"`
	AvatarPath        string             `json:"avatarPath"`
	IsActive          int                `json:"isActive"`
	CreatedBy         *int64             `json:"createdBy,omitempty"`
	CreatedByUsername string             `json:"createdByUsername,omitempty"`
	CreatedDate       string             `json:"createdDate"`
	ModifiedDate      string             `json:"modifiedDate,omitempty"`
	UserGroup         *UserGroupResponse `json:"usergroup,omitempty"`
}

type UserGroupResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive int    `json:"isActive"`
}

// PublicUser converts a user model to its response DTO without credentials
func PublicUser(u *User) *UserResponse {
	resp := &UserResponse{
		ID:                u.ID,
		UserGroupID:       u.UserGroupID,
		Username:          u.Username,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		Email:             u.Email,
		Address:           u.Address,
		PhoneNumber:       u.PhoneNumber,
		Avatar:            u.Avatar,
		AvatarPath:        u.AvatarPath,
		IsActive:          u.IsActive,
		CreatedBy:         u.CreatedBy,
		CreatedByUsername: u.CreatedByUsername,
		CreatedDate:       u.CreatedDate.Format(time.RFC3339),
	}
	if u.ModifiedDate != nil {
		resp.ModifiedDate = u.ModifiedDate.Format(time.RFC3339)
	}
	if u.Group != nil {
		resp.UserGroup = &UserGroupResponse{
			ID:       u.Group.ID,
			Name:     u.Group.Name,
			IsActive: u.Group.IsActive,
		}
	}
	return resp
}

// StampCreated records creation time and actor on a new user
func StampCreated(u *User, actor *Principal, now time.Time) {
	u.CreatedDate = now
	if actor != nil {
		id := actor.ID
		u.CreatedBy = &id
		u.CreatedByUsername = actor.Username
	}
}

// StampModified records modification time and actor on an existing user
func StampModified(u *User, actor *Principal, now time.Time) {
	u.ModifiedDate = &now
	if actor != nil {
		id := actor.ID
		u.ModifiedBy = &id
		u.ModifiedByUsername = actor.Username
	}
}
