package common

import "time"

// AuthorizationHeaderName carries the bearer access token on HTTP requests.
const AuthorizationHeaderName = "Authorization"

const (
	// ConfirmationCodeValidity is how long an emailed confirmation code stays usable.
	ConfirmationCodeValidity = 5 * time.Minute

	// RefreshTokenValidity is the lifetime of a persisted refresh token.
	RefreshTokenValidity = 15 * 24 * time.Hour

	// ConfirmationCodeLength is the number of decimal digits in a confirmation code.
	ConfirmationCodeLength = 6
)
