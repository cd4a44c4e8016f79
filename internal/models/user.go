package models

import "time"

type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleAdmin   UserRole = "admin"
)

// User is an account on the exam-prep platform. A row is created at signup
// with blank name and password; the password hash stays empty until the
// profile-completion step, and such an account cannot authenticate.
// Accounts are never hard-deleted: IsDeleted gates visibility and mutation.
type User struct {
	ID                 string
	Email              string
	PasswordHash       string
	FirstName          string
	LastName           string
	Role               UserRole
	MedicalCollegeName string
	Phone              *string
	MBBSPassingYear    *string
	AvatarURL          *string
	IsEmailVerified    bool
	IsProfileCompleted bool
	IsDeleted          bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
