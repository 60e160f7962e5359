package mcpauth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/auth"
)

const (
	// APIKeyEnv holds the pre-shared bearer key of the MCP endpoint.
	APIKeyEnv = "MEOSBACKUP_MCP_API_KEY"

	// ScopeRead covers every MCP tool; none of them change anything.
	ScopeRead = "meos:read"
)

type tokenInfoKey struct{}

func ContextWithTokenInfo(ctx context.Context, info *auth.TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoKey{}, info)
}

func TokenInfoFromContext(ctx context.Context) *auth.TokenInfo {
	if info, ok := ctx.Value(tokenInfoKey{}).(*auth.TokenInfo); ok {
		return info
	}
	return nil
}

// Authenticator checks bearer tokens against a single API key.
type Authenticator struct {
	apiKey string
}

// NewAuthenticator reads the API key from MEOSBACKUP_MCP_API_KEY.
func NewAuthenticator() *Authenticator {
	return &Authenticator{apiKey: os.Getenv(APIKeyEnv)}
}

// Enabled returns true if an API key is configured.
func (a *Authenticator) Enabled() bool {
	return a.apiKey != ""
}

// TokenVerifier has the signature of auth.RequireBearerToken verifiers.
func (a *Authenticator) TokenVerifier() func(ctx context.Context, token string, req *http.Request) (*auth.TokenInfo, error) {
	return func(ctx context.Context, token string, req *http.Request) (*auth.TokenInfo, error) {
		return a.verify(token)
	}
}

func (a *Authenticator) verify(token string) (*auth.TokenInfo, error) {
	if a.apiKey == "" || token == "" {
		return nil, auth.ErrInvalidToken
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(a.apiKey)) != 1 {
		return nil, auth.ErrInvalidToken
	}

	return &auth.TokenInfo{
		Scopes: []string{ScopeRead},
		Extra:  map[string]any{"auth_mode": "api_key"},
	}, nil
}

// ValidateAuthHeader extracts and validates Bearer token from Authorization header.
func (a *Authenticator) ValidateAuthHeader(authHeader string) (*auth.TokenInfo, error) {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return a.verify(strings.TrimSpace(token))
}
