// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package middleware

import (
	"net/http"

	"github.com/veyralabs/veyra/internal/identity/ratelimit"
	"github.com/veyralabs/veyra/internal/platform/apperr"
	"github.com/veyralabs/veyra/internal/platform/constants"
	"github.com/veyralabs/veyra/internal/platform/respond"
)

// # Shared Admission Control

// Admit enforces the shared per-category rate limit for a route group.
//
// # Identity
//
// Clients presenting an API key (X-API-Key) are counted by key; everyone
// else is counted by source IP. This lets trusted integrations be
// allowlisted by key regardless of their network address.
//
// # Usage
//
//	router.With(middleware.Admit(limiter, ratelimit.CategoryAuthentication)).
//	    Post("/login", handler.login)
func Admit(limiter *ratelimit.Limiter, category ratelimit.Category) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

			// Resolve the client identity: API key wins over IP.
			identity := request.Header.Get(constants.HeaderAPIKey)
			if identity == "" {
				identity = RealIP(request)
			}

			decision, err := limiter.Check(request.Context(), identity, category)

			// Fail-closed policy surfaces the store outage as a retryable 503.
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			if !decision.Allowed {
				retryAfter := int(decision.RetryAfter.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				respond.Error(writer, request, apperr.RateLimited(retryAfter))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
