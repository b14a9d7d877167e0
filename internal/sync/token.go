package sync

import (
	"context"
	"fmt"
	"time"

	"example.com/coachsync/internal/domain"
)

// refreshBuffer is how close to expiry a token may get before we rotate it.
const refreshBuffer = 60 * time.Second

// TokenManager hands out provider credentials that are valid for immediate
// use, rotating them through the provider's token-exchange endpoint when the
// stored expiry is inside the safety buffer.
type TokenManager struct {
	provider    Provider
	connections ConnectionStore
	now         func() time.Time
}

// NewTokenManager constructs a TokenManager.
func NewTokenManager(provider Provider, connections ConnectionStore) *TokenManager {
	return &TokenManager{provider: provider, connections: connections, now: time.Now}
}

// Valid returns a usable access token for the connection, refreshing first if
// needed. A rejected refresh wraps domain.ErrTokenRefresh: the caller treats
// it as this account's sync failing, never as batch-fatal.
func (m *TokenManager) Valid(ctx context.Context, conn *domain.Connection) (string, error) {
	if conn.ExpiresAt.After(m.now().Add(refreshBuffer)) {
		return conn.AccessToken, nil
	}

	grant, err := m.provider.RefreshToken(ctx, conn.RefreshToken)
	if err != nil {
		// Both links in the chain stay inspectable: the caller matches
		// ErrTokenRefresh for per-account accounting and still sees a
		// typed rate-limit condition from the provider.
		return "", fmt.Errorf("%w: account %s: %w", domain.ErrTokenRefresh, conn.AccountID, err)
	}

	rotated := domain.Connection{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		Scope:        grant.Scope,
	}
	if err := m.connections.RotateTokens(ctx, conn.AccountID, rotated); err != nil {
		return "", fmt.Errorf("%w: account %s: persist rotation: %w", domain.ErrTokenRefresh, conn.AccountID, err)
	}

	conn.AccessToken = grant.AccessToken
	conn.RefreshToken = grant.RefreshToken
	conn.ExpiresAt = grant.ExpiresAt
	conn.Scope = grant.Scope
	return conn.AccessToken, nil
}
