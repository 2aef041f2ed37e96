// Package models defines the account records persisted in the database and
// the value types exchanged between services and transport.
package models

import (
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
)

// Account is a confirmed credential. It is also the snapshot stored in the
// cache, so it carries no persistence-tracking state.
type Account struct {
	ID        uuid.UUID
	Email     string
	FirstName string
	LastName  string
	Phone     *string

	PasswordHash             string
	LastPasswordDateModified *time.Time

	Role  Role
	Image *string

	// Token is the current refresh token; TokenValidBefore is its expiry.
	Token            *string
	TokenValidBefore *time.Time

	// ConfirmationCode gates re-verification of the email address.
	// PendingEmail is the address the code was mailed to; only that
	// address can be confirmed with it.
	ConfirmationCode            *string
	ConfirmationCodeValidBefore *time.Time
	PendingEmail                *string
	IsEmailVerified             bool

	CreatedAt time.Time
}

// TokenExpired reports whether the stored refresh token is absent or its
// expiry is not after now.
func (a *Account) TokenExpired(now time.Time) bool {
	if a.Token == nil || a.TokenValidBefore == nil {
		return true
	}
	return !now.Before(*a.TokenValidBefore)
}

// ConfirmationCodeMatches reports whether code equals the stored code byte
// for byte and now is strictly before its expiry.
func (a *Account) ConfirmationCodeMatches(code string, now time.Time) bool {
	if a.ConfirmationCode == nil || a.ConfirmationCodeValidBefore == nil {
		return false
	}
	return codeMatches(*a.ConfirmationCode, *a.ConfirmationCodeValidBefore, code, now)
}

// EmailChangeMatches reports whether code confirms email: the code must
// match and be unexpired, and email must be the address it was sent to.
func (a *Account) EmailChangeMatches(email, code string, now time.Time) bool {
	if a.PendingEmail == nil || *a.PendingEmail != email {
		return false
	}
	return a.ConfirmationCodeMatches(code, now)
}

// ClearConfirmationCode drops a consumed code, its expiry and its target
// address.
func (a *Account) ClearConfirmationCode() {
	a.ConfirmationCode = nil
	a.ConfirmationCodeValidBefore = nil
	a.PendingEmail = nil
}

// Summary is the listing projection.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Email:     a.Email,
		Role:      a.Role,
	}
}

// AccountPatch holds optional profile fields. Nil fields are left untouched.
type AccountPatch struct {
	FirstName *string
	LastName  *string
	Role      *Role
	Phone     *string
}

// Empty reports whether the patch would change nothing.
func (p AccountPatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Role == nil && p.Phone == nil
}

// Apply copies the supplied fields onto a.
func (p AccountPatch) Apply(a *Account) {
	if p.FirstName != nil {
		a.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		a.LastName = *p.LastName
	}
	if p.Role != nil {
		a.Role = *p.Role
	}
	if p.Phone != nil {
		a.Phone = p.Phone
	}
}

type AccountSummary struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
}

func codeMatches(stored string, validBefore time.Time, supplied string, now time.Time) bool {
	if !now.Before(validBefore) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
