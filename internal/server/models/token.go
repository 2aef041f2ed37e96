package models

import "github.com/google/uuid"

// TokenPayload is what the token codec signs into an access token.
type TokenPayload struct {
	AccountID uuid.UUID
	Role      Role
}

// TokenPair is returned to clients after authentication.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Role         Role   `json:"role"`
}

// Profile is the account as shown to its owner.
type Profile struct {
	Email           string  `json:"email"`
	FirstName       string  `json:"firstName"`
	LastName        string  `json:"lastName"`
	Phone           *string `json:"phone,omitempty"`
	Role            Role    `json:"role"`
	IsEmailVerified bool    `json:"isEmailVerified"`
	URLImage        *string `json:"urlImage,omitempty"`
}

// AccountPage is one page of the admin listing.
type AccountPage struct {
	Total int              `json:"total"`
	Items []AccountSummary `json:"items"`
}
