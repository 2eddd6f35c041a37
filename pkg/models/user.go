// Package models defines the core domain models for template-driven business processes
package models

import "strings"

// UserType distinguishes full account members from task-scoped guests.
type UserType string

const (
	UserTypeUser  UserType = "user"
	UserTypeGuest UserType = "guest"
)

// UserStatus represents the membership state of a user in its account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInvited  UserStatus = "invited"  // Invitation sent, not accepted yet
	UserStatusInactive UserStatus = "inactive" // Deactivated member
)

// User is an account member or a guest performer.
type User struct {
	ID              int64      `json:"id"`
	AccountID       int64      `json:"account_id"       validate:"required"`
	Email           string     `json:"email"            validate:"required,email"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	Type            UserType   `json:"type"             validate:"required,oneof=user guest"`
	Status          UserStatus `json:"status"           validate:"required,oneof=active invited inactive"`
	IsAccountOwner  bool       `json:"is_account_owner"`
	IsAdmin         bool       `json:"is_admin"`
	IsSubscribed    bool       `json:"is_subscribed"`
	TransferPending bool       `json:"transfer_pending"` // Moved from another account, must re-authenticate
}

// FullName returns "first last", falling back to the email when no name is set.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}

	return name
}

func (u *User) IsGuest() bool {
	return u.Type == UserTypeGuest
}

// IsEligible reports whether the user may be assigned to tasks or mentioned.
func (u *User) IsEligible() bool {
	return u.Type == UserTypeUser && (u.Status == UserStatusActive || u.Status == UserStatusInvited)
}

// Group is a named set of account members.
type Group struct {
	ID        int64   `json:"id"`
	AccountID int64   `json:"account_id" validate:"required"`
	Name      string  `json:"name"       validate:"required"`
	UserIDs   []int64 `json:"user_ids"`
}

// HasMember reports whether the user belongs to the group.
func (g *Group) HasMember(userID int64) bool {
	for _, id := range g.UserIDs {
		if id == userID {
			return true
		}
	}

	return false
}
