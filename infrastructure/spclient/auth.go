package spclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"spextract/domain/extraction"
	"spextract/logging"
)

// DefaultTokenURL is the Azure AD v2 token endpoint for multi-tenant apps.
var DefaultTokenURL = microsoft.AzureADEndpoint("common").TokenURL

const tokenEndpointName = "oauth2/v2.0/token"

// TokenExchanger trades a credential's refresh token for a new token pair.
type TokenExchanger interface {
	Exchange(ctx context.Context, cred extraction.Credential) (extraction.Credential, error)
}

// OAuthExchanger performs the refresh_token grant against a token endpoint.
type OAuthExchanger struct {
	tokenURL   string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewOAuthExchanger creates an exchanger. httpClient should not carry the
// token gate itself, only the retrying transport.
func NewOAuthExchanger(tokenURL string, httpClient *http.Client) *OAuthExchanger {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuthExchanger{
		tokenURL:   tokenURL,
		httpClient: httpClient,
		logger:     logging.Default().WithComponent("oauth_exchanger"),
	}
}

// Exchange posts {client_id, client_secret, refresh_token, grant_type, scope}
// form-encoded and returns a new credential carrying the issued tokens.
func (e *OAuthExchanger) Exchange(ctx context.Context, cred extraction.Credential) (extraction.Credential, error) {
	form := url.Values{}
	form.Set("client_id", cred.ClientID)
	form.Set("client_secret", cred.ClientSecret)
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("grant_type", "refresh_token")
	form.Set("scope", cred.Scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return extraction.Credential{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return extraction.Credential{}, fmt.Errorf("calling endpoint %s: %w", tokenEndpointName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return extraction.Credential{}, fmt.Errorf("read token response: %w", err)
	}

	body, err := Classify(tokenEndpointName, resp.StatusCode, resp.Header.Get("Content-Type"), raw)
	if err != nil {
		return extraction.Credential{}, err
	}

	var tok oauth2.Token
	if err := body.Decode(&tok); err != nil {
		return extraction.Credential{}, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return extraction.Credential{}, fmt.Errorf("token response from %s has no access_token", tokenEndpointName)
	}

	e.logger.Security("Access token issued",
		"token_type", tok.TokenType,
		"expires_in", tok.ExpiresIn,
		"refresh_token_rotated", tok.RefreshToken != "" && tok.RefreshToken != cred.RefreshToken)

	return cred.WithTokens(tok.AccessToken, tok.RefreshToken), nil
}

// TokenGate is the authenticating transport. It stamps the current access
// token on every request and, on a 401, refreshes once and replays the
// request once. A 401 on the replay is returned as is.
type TokenGate struct {
	base      http.RoundTripper
	exchanger TokenExchanger

	mu        sync.Mutex
	cred      extraction.Credential
	refreshes int
	onRefresh func(extraction.Credential)

	logger *logging.Logger
}

// Authenticate builds a gate by performing one unconditional exchange, so
// the client always starts with a fresh access token. Candidate refresh
// tokens are tried in order; a rejected token (400/401) moves on to the next.
// When every candidate is rejected an AuthenticationError is returned.
func Authenticate(ctx context.Context, base http.RoundTripper, exchanger TokenExchanger, cred extraction.Credential, candidates ...string) (*TokenGate, error) {
	logger := logging.Default().WithComponent("token_gate")

	if cred.ClientID == "" || cred.ClientSecret == "" {
		return nil, &extraction.ConfigurationError{Field: "authorization", Reason: "app key and app secret are required for the refresh_token flow"}
	}

	tried := 0
	var lastErr error
	seen := make(map[string]struct{}, len(candidates))
	for _, rt := range candidates {
		if rt == "" {
			continue
		}
		if _, dup := seen[rt]; dup {
			continue
		}
		seen[rt] = struct{}{}
		tried++

		attempt := cred
		attempt.RefreshToken = rt
		next, err := exchanger.Exchange(ctx, attempt)
		if err == nil {
			logger.Security("Authenticated with refresh token", "candidate", tried)
			return newTokenGate(base, exchanger, next, logger), nil
		}

		if errors.Is(err, KindBadRequest) || errors.Is(err, KindUnauthorized) {
			logger.Warn("Refresh token rejected, trying next candidate", "candidate", tried, "error", err.Error())
			lastErr = err
			continue
		}
		return nil, fmt.Errorf("initial token exchange: %w", err)
	}

	if tried == 0 {
		return nil, &extraction.AuthenticationError{Err: errors.New("missing refresh token in authorization data")}
	}
	return nil, &extraction.AuthenticationError{Err: lastErr}
}

// NewStaticTokenGate uses a long-lived access token and never refreshes.
func NewStaticTokenGate(base http.RoundTripper, cred extraction.Credential) *TokenGate {
	return newTokenGate(base, nil, cred, logging.Default().WithComponent("token_gate"))
}

func newTokenGate(base http.RoundTripper, exchanger TokenExchanger, cred extraction.Credential, logger *logging.Logger) *TokenGate {
	if base == nil {
		base = http.DefaultTransport
	}
	return &TokenGate{
		base:      base,
		exchanger: exchanger,
		cred:      cred,
		logger:    logger,
	}
}

// OnRefresh registers a callback invoked with each refreshed credential.
func (g *TokenGate) OnRefresh(fn func(extraction.Credential)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onRefresh = fn
}

// Credential returns the current credential.
func (g *TokenGate) Credential() extraction.Credential {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cred
}

// Refreshes returns how many 401-triggered exchanges have happened.
func (g *TokenGate) Refreshes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refreshes
}

// RoundTrip implements http.RoundTripper.
func (g *TokenGate) RoundTrip(req *http.Request) (*http.Response, error) {
	cred := g.Credential()

	first, err := withBearer(req, cred.AccessToken, false)
	if err != nil {
		return nil, err
	}
	resp, err := g.base.RoundTrip(first)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if g.exchanger == nil || !cred.CanRefresh() {
		return resp, nil
	}
	drainAndClose(resp)

	next, err := g.refresh(req.Context(), cred)
	if err != nil {
		if errors.Is(err, KindBadRequest) || errors.Is(err, KindUnauthorized) {
			// The refresh token itself was revoked or expired mid-run.
			return nil, &extraction.AuthenticationError{Err: err}
		}
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	replay, err := withBearer(req, next.AccessToken, true)
	if err != nil {
		return nil, err
	}
	return g.base.RoundTrip(replay)
}

// refresh exchanges the credential that was rejected. If another request
// already replaced it, the newer credential is reused without an exchange.
func (g *TokenGate) refresh(ctx context.Context, rejected extraction.Credential) (extraction.Credential, error) {
	g.mu.Lock()
	if g.cred.AccessToken != rejected.AccessToken {
		current := g.cred
		g.mu.Unlock()
		return current, nil
	}
	g.mu.Unlock()

	g.logger.Security("Access token rejected, refreshing")
	next, err := g.exchanger.Exchange(ctx, rejected)
	if err != nil {
		return extraction.Credential{}, err
	}

	g.mu.Lock()
	g.cred = next
	g.refreshes++
	hook := g.onRefresh
	g.mu.Unlock()

	if hook != nil {
		hook(next)
	}
	return next, nil
}

// withBearer clones req with the Authorization header set. A replay gets a
// fresh body so the original request stays reusable.
func withBearer(req *http.Request, accessToken string, replay bool) (*http.Request, error) {
	r, err := rewind(req, replay)
	if err != nil {
		return nil, err
	}
	if r == req {
		r = req.Clone(req.Context())
	}
	r.Header.Set("Authorization", "Bearer "+accessToken)
	return r, nil
}
