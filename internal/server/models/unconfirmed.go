package models

import "time"

// UnconfirmedAccount is a pending registration awaiting its emailed code.
// At most one exists per email.
type UnconfirmedAccount struct {
	Email                       string
	FirstName                   string
	LastName                    string
	PasswordHash                string
	ConfirmationCode            string
	ConfirmationCodeValidBefore time.Time
	CreatedAt                   time.Time
}

// CodeMatches reports whether code is byte-equal to the stored one and now is
// strictly before the code expiry.
func (u *UnconfirmedAccount) CodeMatches(code string, now time.Time) bool {
	return codeMatches(u.ConfirmationCode, u.ConfirmationCodeValidBefore, code, now)
}
