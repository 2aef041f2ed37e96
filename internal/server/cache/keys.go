package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

func AccountIDKey(id uuid.UUID) string { return "account_" + id.String() }

func AccountEmailKey(email string) string { return "account_" + email }

// AccountTokenKey hashes the token so refresh tokens never appear in key space.
func AccountTokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "account_token_" + hex.EncodeToString(sum[:])
}

func AccountListKey(count, offset int, desc bool) string {
	key := fmt.Sprintf("account_all%d_%d", count, offset)
	if desc {
		key += "_desc"
	}
	return key
}

const AccountsTotalKey = "accounts_total"

func UnconfirmedKey(email string) string { return "unconfirmed_account_" + email }
