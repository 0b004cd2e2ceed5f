// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veyralabs/veyra/internal/platform/middleware"
	"github.com/veyralabs/veyra/internal/platform/sec"
)

// fakeVerifier accepts exactly one token string.
type fakeVerifier struct {
	token  string
	claims *sec.AuthClaims
}

func (verifier *fakeVerifier) VerifyToken(tokenStr string) (*sec.AuthClaims, error) {
	if tokenStr == verifier.token {
		return verifier.claims, nil
	}
	return nil, errors.New("signature mismatch")
}

func okHandler() (http.Handler, *bool) {
	reached := false
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		reached = true
		writer.WriteHeader(http.StatusOK)
	}), &reached
}

func newVerifier() *fakeVerifier {
	return &fakeVerifier{
		token: "valid-token",
		claims: &sec.AuthClaims{
			UserID:      "acc-1",
			TenantID:    "ten-1",
			Roles:       []string{"member"},
			Permissions: []string{"billing.read"},
		},
	}
}

/*
TestAuthenticate_AnonymousPassesThrough verifies that requests without an
Authorization header proceed unauthenticated.
*/
func TestAuthenticate_AnonymousPassesThrough(t *testing.T) {
	handler, reached := okHandler()
	chain := middleware.Authenticate(newVerifier())(handler)

	recorder := httptest.NewRecorder()
	chain.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, *reached)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

/*
TestAuthenticate_RejectsBadTokens verifies malformed headers and invalid
signatures are rejected before the handler.
*/
func TestAuthenticate_RejectsBadTokens(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"malformed_header", "Token abc"},
		{"forged_token", "Bearer forged"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, reached := okHandler()
			chain := middleware.Authenticate(newVerifier())(handler)

			request := httptest.NewRequest(http.MethodGet, "/", nil)
			request.Header.Set("Authorization", tt.header)
			recorder := httptest.NewRecorder()
			chain.ServeHTTP(recorder, request)

			assert.False(t, *reached)
			assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		})
	}
}

/*
TestRequireAuth_BlocksAnonymous verifies the authenticated-only gate.
*/
func TestRequireAuth_BlocksAnonymous(t *testing.T) {
	handler, reached := okHandler()
	chain := middleware.Authenticate(newVerifier())(middleware.RequireAuth(handler))

	// Anonymous is blocked.
	recorder := httptest.NewRecorder()
	chain.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, *reached)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// A verified token passes.
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("Authorization", "Bearer valid-token")
	recorder = httptest.NewRecorder()
	chain.ServeHTTP(recorder, request)
	assert.True(t, *reached)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

/*
TestRequirePermission_ChecksClaimSet verifies the claim-based authorization
gate: held codes pass, missing codes yield 403, anonymous yields 401.
*/
func TestRequirePermission_ChecksClaimSet(t *testing.T) {
	verifier := newVerifier()

	run := func(t *testing.T, code, header string) (*httptest.ResponseRecorder, *bool) {
		t.Helper()
		handler, reached := okHandler()
		chain := middleware.Authenticate(verifier)(middleware.RequirePermission(code)(handler))
		request := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			request.Header.Set("Authorization", header)
		}
		recorder := httptest.NewRecorder()
		chain.ServeHTTP(recorder, request)
		return recorder, reached
	}

	recorder, reached := run(t, "billing.read", "Bearer valid-token")
	assert.True(t, *reached)
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder, reached = run(t, "billing.write", "Bearer valid-token")
	assert.False(t, *reached)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder, reached = run(t, "billing.read", "")
	assert.False(t, *reached)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}
