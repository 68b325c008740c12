package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const userKey contextKey = "registry_user"

// Claims carried by bearer tokens issued for the registry.
type Claims struct {
	jwt.RegisteredClaims
	SiteID        string   `json:"site_id"`
	Roles         []string `json:"roles"`
	Registries    []string `json:"registries"`
	WorkingGroups []string `json:"working_groups"`
	IsPatient     bool     `json:"is_patient"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey switches validation to HS256 with a shared secret.
	SigningKey []byte
}

func (cfg JWTConfig) keyFunc() jwt.Keyfunc {
	if len(cfg.SigningKey) > 0 {
		key := cfg.SigningKey
		return func(*jwt.Token) (interface{}, error) { return key, nil }
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" && cfg.Issuer != "" {
		if discovered, err := DiscoverJWKSURL(cfg.Issuer); err == nil {
			jwksURL = discovered
		}
	}
	return NewJWKSCache(jwksURL, defaultJWKSCacheTTL).keyFunc()
}

func (cfg JWTConfig) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "HS256"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return opts
}

// JWTMiddleware requires a valid bearer token and stores the caller on the
// request context. The token's site_id is exposed to the site middleware as
// "jwt_site_id".
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	keyFunc := cfg.keyFunc()
	opts := cfg.parserOptions()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) || AuthOptional(c) {
				return next(c)
			}
			claims, err := parseBearer(c.Request(), keyFunc, opts)
			if err != nil {
				return err
			}
			setUser(c, userFromClaims(claims), claims.SiteID)
			return next(c)
		}
	}
}

// DevAuthMiddleware lets unauthenticated requests through as an admin with
// access to every registry. Requests that do carry a token are still
// validated when a signing key is configured.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	var keyFunc jwt.Keyfunc
	if len(cfg.SigningKey) > 0 {
		keyFunc = cfg.keyFunc()
	}
	opts := cfg.parserOptions()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" && keyFunc != nil {
				claims, err := parseBearer(c.Request(), keyFunc, opts)
				if err != nil {
					return err
				}
				setUser(c, userFromClaims(claims), claims.SiteID)
				return next(c)
			}
			setUser(c, User{ID: "dev-user", Roles: []string{RoleAdmin}}, "")
			return next(c)
		}
	}
}

func parseBearer(r *http.Request, keyFunc jwt.Keyfunc, opts []jwt.ParserOption) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc, opts...)
	if err != nil || !parsed.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	return claims, nil
}

func userFromClaims(claims *Claims) User {
	return User{
		ID:            claims.Subject,
		Roles:         claims.Roles,
		Registries:    claims.Registries,
		WorkingGroups: claims.WorkingGroups,
		IsPatient:     claims.IsPatient,
	}
}

func setUser(c echo.Context, u User, siteID string) {
	if siteID != "" {
		c.Set("jwt_site_id", siteID)
	}
	c.Set("user_id", u.ID)
	c.SetRequest(c.Request().WithContext(WithUser(c.Request().Context(), u)))
}

// WithUser returns ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the authenticated caller, or the zero User.
func UserFromContext(ctx context.Context) User {
	u, _ := ctx.Value(userKey).(User)
	return u
}

func UserIDFromContext(ctx context.Context) string {
	return UserFromContext(ctx).ID
}

func RolesFromContext(ctx context.Context) []string {
	return UserFromContext(ctx).Roles
}
