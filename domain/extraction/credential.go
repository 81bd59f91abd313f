package extraction

// DefaultScope is the OAuth scope requested for every token exchange:
// read-only site and file access plus offline access for refresh tokens.
const DefaultScope = "offline_access Files.Read Sites.Read.All"

// Credential is an immutable OAuth credential. A refresh never mutates a
// Credential; it produces a new one via WithTokens.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	Scope        string
}

// WithTokens returns a copy of c carrying the given token pair. An empty
// refreshToken keeps the current one, since some token endpoints omit it.
func (c Credential) WithTokens(accessToken, refreshToken string) Credential {
	next := c
	next.AccessToken = accessToken
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	return next
}

// CanRefresh reports whether the credential has what a refresh_token grant needs.
func (c Credential) CanRefresh() bool {
	return c.RefreshToken != "" && c.ClientID != "" && c.ClientSecret != ""
}
