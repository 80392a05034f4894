package user

import (
	"errors"
	"time"

	userDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/user"
)

type User struct {
	ID                 int64     `json:"id"`
	Email              string    `json:"email"`
	ExternalIdentityID string    `json:"external_identity_id"`
	InstitutionID      int64     `json:"institution_id"`
	UserType           string    `json:"user_type"`
	FirstName          string    `json:"first_name"`
	LastName           string    `json:"last_name"`
	IsActive           bool      `json:"is_active"`
	Permissions        []string  `json:"permissions,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

var ErrNotFound = errors.New("user not found")

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:                 u.ID,
		Email:              u.Email,
		ExternalIdentityID: u.ExternalIdentityID,
		InstitutionID:      u.InstitutionID,
		UserType:           u.UserType,
		FirstName:          u.FirstName,
		LastName:           u.LastName,
		IsActive:           u.IsActive,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
		Permissions:        []string{},
	}
}

func FromDataModelWithPermissions(u *userDatamodel.User, permissions []string) *User {
	domainUser := FromDataModel(u)
	domainUser.Permissions = permissions
	return domainUser
}
