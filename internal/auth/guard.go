package auth

import (
	"errors"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	apperrors "storefront/internal/errors"
)

// claimsContextKey is where the verified claims live for the rest of the request.
const claimsContextKey = "claims"

// AuthedHandler is a handler that receives the caller's verified claims explicitly.
type AuthedHandler func(c echo.Context, claims *Claims) error

// Guard verifies bearer tokens and enforces roles on protected routes.
type Guard struct {
	jwt      *JWTService
	denyList TokenDenyList
}

// NewGuard creates a guard. denyList may be nil when revocation is not used.
func NewGuard(jwtService *JWTService, denyList TokenDenyList) *Guard {
	return &Guard{jwt: jwtService, denyList: denyList}
}

// Middleware rejects requests without a valid, unrevoked `Authorization: Bearer` token.
func (g *Guard) Middleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  claimsContextKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			claims, err := g.jwt.ValidateToken(token)
			if err != nil {
				return nil, err
			}
			if g.denyList != nil && g.denyList.IsRevoked(c.Request().Context(), claims.ID) {
				return nil, errors.New("token revoked")
			}
			return claims, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return unauthorized()
		},
	})
}

// RequireUser passes the claims of any authenticated caller to h.
func (g *Guard) RequireUser(h AuthedHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := ClaimsFrom(c)
		if claims == nil {
			return unauthorized()
		}
		return h(c, claims)
	}
}

// RequireAdmin passes the claims to h only when the role claim is admin.
func (g *Guard) RequireAdmin(h AuthedHandler) echo.HandlerFunc {
	return g.RequireUser(func(c echo.Context, claims *Claims) error {
		if !claims.IsAdmin() {
			httpErr := apperrors.MapErrorToHTTP(apperrors.ErrForbidden)
			return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
		}
		return h(c, claims)
	})
}

// ClaimsFrom returns the claims stored by Middleware, or nil.
func ClaimsFrom(c echo.Context) *Claims {
	claims, _ := c.Get(claimsContextKey).(*Claims)
	return claims
}

func unauthorized() error {
	httpErr := apperrors.MapErrorToHTTP(apperrors.ErrUnauthorized)
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
}
