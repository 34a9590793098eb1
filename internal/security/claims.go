package security

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeIngest allows pushing contract logs through POST /api/events.
const ScopeIngest = "events:ingest"

// Claims are the registered claims plus a space-separated scope list.
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) HasScope(scope string) bool {
	for _, s := range strings.Fields(c.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}
