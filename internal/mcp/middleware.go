package mcp

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

var errUnauthorized = errors.New("unauthorized")

// authMiddleware implements bearer token authentication as MCP middleware.
func authMiddleware(apiKey string) sdkmcp.Middleware {
	want := sha256.Sum256([]byte(apiKey))
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			// Skip auth for protocol methods
			if method == "initialize" || method == "ping" || strings.HasPrefix(method, "notifications/") {
				return next(ctx, method, req)
			}

			extra := req.GetExtra()
			if extra == nil || extra.Header == nil {
				return nil, errors.Join(errUnauthorized, errors.New("missing headers"))
			}

			auth := extra.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" || token == auth {
				return nil, errors.Join(errUnauthorized, errors.New("missing bearer token"))
			}
			got := sha256.Sum256([]byte(token))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				return nil, errors.Join(errUnauthorized, errors.New("invalid bearer token"))
			}

			return next(ctx, method, req)
		}
	}
}
