package driven

import "github.com/custodia-labs/investigraph/internal/core/domain"

// TokenInspector reads claims from an access token without verifying it.
// The client never holds the signing key; claims are informational only.
type TokenInspector interface {
	Inspect(token string) (*domain.TokenClaims, error)
}
