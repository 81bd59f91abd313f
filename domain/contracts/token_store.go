package contracts

import "context"

// TokenStore persists the OAuth refresh token between runs. Tokens rotate on
// every exchange, so the latest one must be saved as soon as it is issued.
type TokenStore interface {
	// LoadRefreshToken returns the stored token, or "" when none is stored.
	LoadRefreshToken(ctx context.Context) (string, error)
	SaveRefreshToken(ctx context.Context, token string) error
}
