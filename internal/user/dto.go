package user

import (
	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/core/common/validation"
	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ListFilter narrows ListUsers. Zero values mean no filter.
type ListFilter struct {
	UserType string
	Active   *bool
	Limit    int
	Offset   int
}

func (f ListFilter) Validate() *appErrors.AppError {
	v := validation.NewValidator()
	if f.UserType != "" {
		v.Field("type", f.UserType).OneOf(appErrors.ErrCodeInvalidUserType, coreUser.TypeNames()...)
	}
	v.Field("limit", int64(f.Limit)).MinInt(1, appErrors.ErrCodeValidationFailed)
	v.Field("offset", int64(f.Offset)).MinInt(0, appErrors.ErrCodeValidationFailed)
	return v.Validate()
}

type ListResponse struct {
	Users  []*User `json:"users"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

type DeactivateResponse struct {
	ID       int64 `json:"id"`
	IsActive bool  `json:"is_active"`
}
