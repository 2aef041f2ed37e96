package rest

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type applyRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (r applyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 200)),
	)
}

type signupRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r signupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required),
	)
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r signinRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type restoreRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r restoreRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type changePasswordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

func (r changePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(1, 200)),
	)
}

type patchMeRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Role      *string `json:"role"`
	Phone     *string `json:"phone"`
}

func (r patchMeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.Role, validation.NilOrNotEmpty, validation.By(validRole)),
		validation.Field(&r.Phone, validation.NilOrNotEmpty, validation.By(validPhone)),
	)
}

// patch converts the request into an AccountPatch. It must only be called
// after Validate succeeded.
func (r patchMeRequest) patch() models.AccountPatch {
	p := models.AccountPatch{FirstName: r.FirstName, LastName: r.LastName}
	if r.Role != nil {
		role, _ := models.ParseRole(*r.Role)
		p.Role = &role
	}
	if r.Phone != nil {
		phone, _ := normalizePhone(*r.Phone)
		p.Phone = &phone
	}
	return p
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r verifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required),
	)
}

type emailChangeRequest struct {
	Email string `json:"email"`
}

func (r emailChangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
	)
}

type listQuery struct {
	Count  int    `query:"count"`
	Offset int    `query:"offset"`
	Order  string `query:"order"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (q listQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Count, validation.Min(1), validation.Max(maxPageSize)),
		validation.Field(&q.Offset, validation.Min(0)),
		validation.Field(&q.Order, validation.In("", "asc", "desc")),
	)
}

func validRole(value interface{}) error {
	s, _ := value.(*string)
	if s == nil {
		return nil
	}
	_, err := models.ParseRole(*s)
	return err
}

func validPhone(value interface{}) error {
	s, _ := value.(*string)
	if s == nil {
		return nil
	}
	_, err := normalizePhone(*s)
	return err
}

var errInvalidPhone = errors.New("must be an international phone number")

// normalizePhone parses an international number and formats it as E.164.
func normalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), phonenumbers.UNKNOWN_REGION)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", errInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
