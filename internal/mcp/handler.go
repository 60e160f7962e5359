package mcp

import (
	"log/slog"
	"net/http"

	"github.com/localrivet/meosbackup/internal/mcp/mcpauth"
	"github.com/localrivet/meosbackup/internal/mcp/tools"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler serves the MCP endpoint behind bearer token authentication.
// The key comes from MEOSBACKUP_MCP_API_KEY; without it every request is
// refused.
type Handler struct {
	toolCtx       *tools.ToolContext
	logger        *slog.Logger
	authenticator *mcpauth.Authenticator
	httpHandler   http.Handler
}

func NewHandler(toolCtx *tools.ToolContext, logger *slog.Logger) *Handler {
	h := &Handler{
		toolCtx:       toolCtx,
		logger:        logger,
		authenticator: mcpauth.NewAuthenticator(),
	}

	if !h.authenticator.Enabled() {
		logger.Warn(mcpauth.APIKeyEnv + " not set - MCP endpoint will reject all requests")
	}

	streamHandler := mcp.NewStreamableHTTPHandler(
		h.getServerForRequest,
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	h.httpHandler = h.authMiddleware(streamHandler)

	return h
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.logger.Debug("MCP request", "method", r.Method, "path", r.URL.Path)

		if !h.authenticator.Enabled() {
			http.Error(w, "MCP endpoint not configured", http.StatusServiceUnavailable)
			return
		}

		tokenInfo, err := h.authenticator.ValidateAuthHeader(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="meosbackup", scope="`+mcpauth.ScopeRead+`"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := mcpauth.ContextWithTokenInfo(r.Context(), tokenInfo)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// getServerForRequest creates a new MCP server for each request.
func (h *Handler) getServerForRequest(r *http.Request) *mcp.Server {
	return NewServer(h.toolCtx)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.httpHandler.ServeHTTP(w, r)
}

// Enabled returns true if MCP is configured (API key is set).
func (h *Handler) Enabled() bool {
	return h.authenticator.Enabled()
}
