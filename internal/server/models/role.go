package models

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

// Role is the account role. Only the values below are ever persisted.
type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// DefaultRole is assigned to accounts promoted from a pending registration.
const DefaultRole = RoleUser

// ParseRole accepts a role name in any letter case and returns its canonical form.
func ParseRole(s string) (Role, error) {
	switch {
	case strings.EqualFold(s, string(RoleUser)):
		return RoleUser, nil
	case strings.EqualFold(s, string(RoleAdmin)):
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("%q: %w", s, common.ErrInvalidRole)
	}
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

func (r Role) String() string { return string(r) }

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%q: %w", string(r), common.ErrInvalidRole)
	}
	return []byte(r), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value refuses to write a role the read path could not parse back.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%q: %w", string(r), common.ErrInvalidRole)
	}
	return string(r), nil
}

func (r *Role) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("unsupported role column type %T: %w", src, common.ErrInvalidRole)
	}
}
