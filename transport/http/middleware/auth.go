package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"roomkey/config"
	"roomkey/infras/jwt"
	"roomkey/infras/otel"
	"roomkey/permissions"
	"roomkey/shared/constant"
	"roomkey/shared/failure"
	"roomkey/transport/http/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type trustedKey struct{}

const (
	bearerPrefix     = "Bearer "
	queryAccessToken = "access_token"
)

type Auth interface {
	Auth(http.Handler) http.Handler
	APIKey(http.Handler) http.Handler
}

type Role interface {
	RBAC(http.Handler) http.Handler
}

// AuthRole is the chain mounted on /v1: APIKey, then Auth, then RBAC.
type AuthRole interface {
	Auth
	Role
}

type authRoleImpl struct {
	jwtService jwt.JWT
	otel       otel.Otel
	table      *permissions.Table
	cfg        *config.Config
}

func NewAuthRoleMiddleware(jwtService jwt.JWT, otel otel.Otel, table *permissions.Table, cfg *config.Config) AuthRole {
	return &authRoleImpl{
		jwtService: jwtService,
		otel:       otel,
		table:      table,
		cfg:        cfg,
	}
}

func trusted(ctx context.Context) bool {
	ok, _ := ctx.Value(trustedKey{}).(bool)

	return ok
}

func (m *authRoleImpl) rule(request *http.Request) (permissions.Rule, string) {
	path := routePattern(request)
	if m.table == nil {
		return permissions.Rule{}, path
	}

	rule, _ := m.table.Lookup(request.Method, path)

	return rule, path
}

// APIKey marks requests carrying the internal key as trusted. A wrong key is rejected outright.
func (m *authRoleImpl) APIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		key := request.Header.Get(constant.RequestHeaderAPIKey)
		if key == "" {
			next.ServeHTTP(writer, request)

			return
		}

		_, scope := m.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, "api_key.middleware")
		defer scope.End()

		expected := m.cfg.App.APIKey
		if expected == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			scope.TraceError(failure.ForbiddenError)
			log.Warn().Str("path", request.URL.Path).Msg("rejected internal api key")
			response.WithError(writer, failure.ForbiddenError)

			return
		}

		scope.SetAttribute("http.source", "internal")

		next.ServeHTTP(writer, request.WithContext(context.WithValue(request.Context(), trustedKey{}, true)))
	})
}

// Auth validates the bearer token and stores its claims in the context. Public routes pass untouched.
func (m *authRoleImpl) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ctx := request.Context()

		rule, path := m.rule(request)
		if trusted(ctx) || rule.Public {
			next.ServeHTTP(writer, request)

			return
		}

		ctx, scope := m.otel.NewScope(ctx, constant.OtelHandlerScopeName, "auth.middleware")
		defer scope.End()

		scope.SetAttributes(map[string]any{"http.route": path, "http.method": request.Method})

		reject := func(message string) {
			err := failure.Unauthorized(message)
			scope.TraceError(err)
			response.WithError(writer, err)
		}

		header := bearerHeader(request)
		if header == "" {
			reject("Missing authorization header")

			return
		}

		token, err := jwt.ExtractTokenFromHeader(header)
		if err != nil {
			reject("Invalid authorization header format")

			return
		}

		claims, err := m.jwtService.ValidateToken(token)
		if err != nil {
			reject(tokenErrorMessage(err))

			return
		}

		ctx = context.WithValue(ctx, constant.ContextKeyUserID, claims.UserID)
		ctx = context.WithValue(ctx, constant.ContextKeyUserEmail, claims.Email)
		ctx = context.WithValue(ctx, constant.ContextKeyUserRole, claims.Role)
		ctx = context.WithValue(ctx, constant.ContextKeyTokenID, claims.ID)

		next.ServeHTTP(writer, request.WithContext(ctx))
	})
}

// RBAC must run after Auth. Routes missing from the table admit any authenticated caller; a missing table
// denies everything.
func (m *authRoleImpl) RBAC(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ctx := request.Context()
		if trusted(ctx) {
			next.ServeHTTP(writer, request)

			return
		}

		if m.table == nil {
			response.WithError(writer, failure.ForbiddenError)

			return
		}

		rule, path := m.rule(request)
		if m.table.Disabled || rule.Public {
			next.ServeHTTP(writer, request)

			return
		}

		role, _ := ctx.Value(constant.ContextKeyUserRole).(string)
		if !rule.Allows(role) {
			_, scope := m.otel.NewScope(ctx, constant.OtelHandlerScopeName, "rbac.middleware")
			scope.TraceError(failure.ForbiddenError)
			scope.SetAttributes(map[string]any{
				"user_role":     role,
				"allowed_roles": rule.Roles,
			})
			scope.End()

			log.Warn().Str("role", role).Str("route", path).Str("method", request.Method).Msg("role not allowed")
			response.WithError(writer, failure.ForbiddenError)

			return
		}

		next.ServeHTTP(writer, request)
	})
}

// bearerHeader falls back to the access_token query parameter on websocket handshakes, where browsers
// cannot set headers.
func bearerHeader(request *http.Request) string {
	if header := request.Header.Get(constant.RequestHeaderAuthorization); header != "" {
		return header
	}

	if !strings.EqualFold(request.Header.Get("Upgrade"), "websocket") {
		return ""
	}

	if token := request.URL.Query().Get(queryAccessToken); token != "" {
		return bearerPrefix + token
	}

	return ""
}

func tokenErrorMessage(err error) string {
	switch {
	case errors.Is(err, jwt.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, jwt.ErrInvalidToken):
		return "Invalid token"
	case errors.Is(err, jwt.ErrInvalidClaim):
		return "Invalid token claims"
	default:
		return "Token validation failed"
	}
}

// routePattern resolves the registered chi pattern so "/bookings/" and "/bookings" share one rule.
func routePattern(request *http.Request) string {
	path := trimSlash(request.URL.Path)

	rctx := chi.RouteContext(request.Context())
	if rctx == nil || rctx.Routes == nil {
		return path
	}

	if pattern := rctx.Routes.Find(chi.NewRouteContext(), request.Method, path); pattern != "" {
		return trimSlash(pattern)
	}

	return path
}

func trimSlash(path string) string {
	if len(path) > 1 {
		return strings.TrimSuffix(path, "/")
	}

	return path
}
