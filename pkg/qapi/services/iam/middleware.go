package iam

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/quatton/qfold/pkg/qlog"
)

// Middleware rejects /api requests without a valid bearer token when the
// service is enabled. Other paths (health, docs) stay open.
func (s *IAMService) Middleware(api huma.API, logger *qlog.Logger) func(ctx huma.Context, next func(huma.Context)) {
	if logger == nil {
		logger = qlog.Discard()
	}
	return func(ctx huma.Context, next func(huma.Context)) {
		if !s.Enabled() || !strings.HasPrefix(ctx.URL().Path, "/api/") {
			next(ctx)
			return
		}

		token, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer ")
		if !ok || token == "" {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, ErrUnauthorized.Error())
			return
		}
		p, err := s.ValidateToken(token)
		if err != nil {
			logger.Warn("invalid token", "error", err)
			huma.WriteErr(api, ctx, http.StatusUnauthorized, ErrUnauthorized.Error())
			return
		}
		logger.Debug("authenticated", "subject", p.Subject)
		next(huma.WithValue(ctx, principalKey, p))
	}
}
