package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/cyclerconv/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context for the conversion history.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr // already rewritten by TrustedRealIP
	return core.ContextWithClient(ctx, ip, r.Header.Get("User-Agent"))
}
