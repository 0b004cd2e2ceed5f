// Copyright (c) 2026 Veyra Labs. All rights reserved.
// Author: platform@veyralabs.dev

package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veyralabs/veyra/internal/identity/ratelimit"
	"github.com/veyralabs/veyra/internal/platform/apperr"
	"github.com/veyralabs/veyra/internal/platform/constants"
	"github.com/veyralabs/veyra/internal/platform/middleware"
	requestutil "github.com/veyralabs/veyra/internal/platform/request"
	"github.com/veyralabs/veyra/internal/platform/respond"
	"github.com/veyralabs/veyra/internal/platform/sec"
	"github.com/veyralabs/veyra/internal/platform/validate"
	"github.com/veyralabs/veyra/pkg/pagination"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages the account lifecycle entry points (registration,
// login, session management, credential recovery) and the caller's own
// permission listing.
type Handler struct {
	authService *Service
	authorizer  Authorizer
	limiter     *ratelimit.Limiter
}

// NewHandler constructs a new [Handler] with its service dependencies.
func NewHandler(service *Service, authorizer Authorizer, limiter *ratelimit.Limiter) *Handler {
	return &Handler{authService: service, authorizer: authorizer, limiter: limiter}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// Every route group passes through the shared rate limiter under its traffic
// category before reaching a handler.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.Admit(handler.limiter, ratelimit.CategoryAuthentication))
		r.Post("/login", handler.login)
		r.Post("/refresh", handler.refresh)
		r.Post("/logout", handler.logout)
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.Admit(handler.limiter, ratelimit.CategoryRegistration))
		r.Post("/register", handler.register)
		r.Post("/verify-email", handler.verifyEmail)
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.Admit(handler.limiter, ratelimit.CategoryCredentialReset))
		r.Post("/forgot-password", handler.forgotPassword)
		r.Post("/reset-password", handler.resetPassword)
	})

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.Admit(handler.limiter, ratelimit.CategoryGeneral))
		r.Use(middleware.RequireAuth)
		r.Get("/sessions", handler.listSessions)
		r.Delete("/sessions/{sessionID}", handler.revokeSession)
		r.Post("/sessions/revoke-others", handler.revokeOthers)
		r.Post("/change-password", handler.changePassword)
		r.Get("/permissions", handler.listPermissions)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Tenant      string `json:"tenant"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Tenant   string `json:"tenant"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Tenant string `json:"tenant"`
	Email  string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type revokeOthersRequest struct {
	Password string `json:"password"`
}

/*
Register handles the creation of a new account.

POST /api/v1/auth/register

Request:
  - Header: X-Tenant (or body field "tenant")
  - Body: registerRequest (Username, Email, Password, DisplayName)

Response:
  - 201: Principal: Created account profile
  - 400: ErrInvalidJSON: Bad input or validation failure
  - 409: ErrConflict: Username or Email already exists
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	slug := handler.tenantSlug(request, input.Tenant)

	validator := &validate.Validator{}
	validator.Required(FieldTenant, slug).
		Required(FieldUsername, input.Username).
		MinLen(FieldUsername, input.Username, 3).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.authService.Register(request.Context(), RegisterInput{
		TenantSlug:  slug,
		Username:    input.Username,
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, account)
}

/*
Login authenticates an account and establishes a session.

POST /api/v1/auth/login

Response:
  - 200: Session: Access token and account profile
  - 401: ErrUnauthorized: Invalid credentials, locked or disabled account
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	slug := handler.tenantSlug(request, input.Tenant)

	validator := &validate.Validator{}
	validator.Required(FieldTenant, slug).
		Required(FieldLogin, input.Login).
		Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		TenantSlug: slug,
		Login:      input.Login,
		Password:   input.Password,
		UserAgent:  request.UserAgent(),
		IPAddress:  middleware.RealIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setSessionCookie(writer, session)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldAccount:     session.Account,
	})
}

/*
Refresh issues a new access token and session using a valid session secret.

POST /api/v1/auth/refresh

The presented secret stays usable until it expires or is revoked; each
refresh simply adds a fresh session alongside it.

Response:
  - 200: RefreshResponse: New access token credentials
  - 401: ErrUnauthorized: Missing or invalid session secret
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	secret := handler.sessionSecret(request)
	if secret == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing session token"))
		return
	}

	session, err := handler.authService.Refresh(
		request.Context(),
		secret,
		request.UserAgent(),
		middleware.RealIP(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.setSessionCookie(writer, session)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int(handler.authService.accessTokenTTL / time.Second),
	})
}

/*
Logout terminates the current session.

POST /api/v1/auth/logout

Response:
  - 204: No Content: Session terminated (idempotent)
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if secret := handler.sessionSecret(request); secret != "" {
		_ = handler.authService.Logout(request.Context(), secret)
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	respond.NoContent(writer)
}

/*
ListSessions returns the caller's active sessions with the current one flagged.

GET /api/v1/auth/sessions

Response:
  - 200: []Session: Paginated session metadata
  - 401: ErrUnauthorized: Missing authentication
*/
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	currentHash := ""
	if secret := handler.sessionSecret(request); secret != "" {
		currentHash = sec.HashToken(secret)
	}

	params := pagination.FromRequest(request)
	sessions, total, err := handler.authService.ListSessions(request.Context(), accountID, currentHash, params)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, sessions, pagination.NewMeta(params.Page, params.Limit, total))
}

/*
RevokeSession revokes one of the caller's sessions by ID.

DELETE /api/v1/auth/sessions/{sessionID}

Response:
  - 204: No Content: Session revoked
  - 404: ErrNotFound: Unknown or foreign session
*/
func (handler *Handler) revokeSession(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessionID := requestutil.Param(request, "sessionID")

	validator := &validate.Validator{}
	validator.Required("session_id", sessionID).UUID("session_id", sessionID)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RevokeSession(request.Context(), accountID, sessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
RevokeOthers revokes every session except the current one after re-proving
the password.

POST /api/v1/auth/sessions/revoke-others

Response:
  - 204: No Content: Other sessions revoked
  - 401: ErrUnauthorized: Password incorrect or no current session
*/
func (handler *Handler) revokeOthers(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input revokeOthersRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	secret := handler.sessionSecret(request)
	if secret == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing session token"))
		return
	}

	if err := handler.authService.RevokeOthers(request.Context(), accountID, secret, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ChangePassword updates the caller's credentials.

POST /api/v1/auth/change-password

Response:
  - 204: No Content: Password changed, other sessions revoked
  - 401: ErrUnauthorized: Current password incorrect
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		MinLen(FieldNewPassword, input.NewPassword, 8)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.ChangePassword(
		request.Context(),
		accountID,
		input.CurrentPassword,
		input.NewPassword,
		handler.sessionSecret(request),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ListPermissions returns the caller's effective permission set, freshly
resolved (cache-aside) rather than read from the token.

GET /api/v1/auth/permissions

Response:
  - 200: []string: Effective permission codes
  - 401: ErrUnauthorized: Missing authentication
*/
func (handler *Handler) listPermissions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	permissions, err := handler.authorizer.Resolve(request.Context(), claims.TenantID, claims.UserID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldPermissions: permissions})
}

/*
VerifyEmail confirms an account's email ownership.

POST /api/v1/auth/verify-email

Response:
  - 200: Success: Email verified
  - 404: ErrNotFound: Unknown or expired token
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	var input verifyEmailRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, input.Token)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.VerifyEmail(request.Context(), input.Token); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldMessage: "Email verified successfully"})
}

/*
ForgotPassword initiates the password recovery flow.

POST /api/v1/auth/forgot-password

Always answers 200 to prevent account enumeration.
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	slug := handler.tenantSlug(request, input.Tenant)

	validator := &validate.Validator{}
	validator.Required(FieldTenant, slug).
		Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// The token is delivered out of band; the response never reveals whether
	// the account exists.
	// TODO: Hand the token to the mailer instead of discarding it here.
	_, _ = handler.authService.RequestPasswordReset(request.Context(), slug, input.Email)

	respond.OK(writer, map[string]any{FieldMessage: "If the account exists, a reset link has been sent"})
}

/*
ResetPassword completes the password recovery flow.

POST /api/v1/auth/reset-password

Response:
  - 200: Success: Password replaced, all sessions revoked
  - 404: ErrNotFound: Unknown or expired token
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldToken, input.Token).
		Required(FieldPassword, input.Password).
		MinLen(FieldPassword, input.Password, 8)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.ResetPassword(request.Context(), input.Token, input.Password); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{FieldMessage: "Password has been reset"})
}

// # Transport Helpers

// tenantSlug prefers the X-Tenant header, falling back to the body field.
func (handler *Handler) tenantSlug(request *http.Request, bodyValue string) string {
	if slug, err := requestutil.TenantSlug(request); err == nil {
		return slug
	}
	return bodyValue
}

// sessionSecret reads the opaque session secret from the cookie.
func (handler *Handler) sessionSecret(request *http.Request) string {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie == nil {
		return ""
	}
	return cookie.Value
}

// setSessionCookie injects the session secret as a scoped HttpOnly cookie.
func (handler *Handler) setSessionCookie(writer http.ResponseWriter, session *LoginSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.SessionToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.SessionTokenExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
