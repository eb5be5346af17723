package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/user"
)

const (
	// userCookie carries the customer session, adminCookie the back-office one.
	// Both hold the same kind of token.
	userCookie  = "token"
	adminCookie = "auth_token"

	contextTokenKey = "userToken"
	contextUserKey  = "user"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

func (c Claims) IsAdmin() bool {
	return strings.EqualFold(c.Role, user.RoleAdmin)
}

func GetUserClaims(conf *core.Config, usr user.User) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  usr.Name,
		Email: usr.Email,
		Role:  usr.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Token sources, by priority. The back-office session cookie comes first on admin routes,
// so a customer session opened in the same browser does not shadow it.
var (
	customerTokenLookup = "header:" + echo.HeaderAuthorization + ",cookie:" + userCookie + ",cookie:" + adminCookie
	adminTokenLookup    = "header:" + echo.HeaderAuthorization + ",cookie:" + adminCookie + ",cookie:" + userCookie
)

// appJWTConfig returns the JWT middleware config for a token lookup. The first token that parses wins.
func (s *Server) appJWTConfig(tokenLookup string) middleware.JWTConfig {
	return middleware.JWTConfig{
		ContextKey:     contextTokenKey,
		TokenLookup:    tokenLookup,
		AuthScheme:     "Bearer",
		ParseTokenFunc: s.parseToken,
		ErrorHandlerWithContext: func(err error, ctx echo.Context) error {
			if err == middleware.ErrJWTMissing {
				return errMissingToken
			}
			return errInvalidToken
		},
	}
}

// setupAuth builds the auth middlewares used by the routes.
func (s *Server) setupAuth() {
	s.authMiddleware = middleware.JWTWithConfig(s.appJWTConfig(customerTokenLookup))
	s.adminAuthMiddleware = middleware.JWTWithConfig(s.appJWTConfig(adminTokenLookup))

	// sets the token when a valid one is sent, and lets anonymous requests through
	optional := s.appJWTConfig(customerTokenLookup)
	optional.ContinueOnIgnoredError = true
	optional.ErrorHandlerWithContext = func(error, echo.Context) error { return nil }
	s.optionalAuthMiddleware = middleware.JWTWithConfig(optional)
}

func (s *Server) parseToken(raw string, _ echo.Context) (interface{}, error) {
	if raw == "" {
		return nil, middleware.ErrJWTMissing
	}
	token, err := jwt.ParseWithClaims(raw, new(Claims), func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.Errorf("unexpected jwt signing method=%v", t.Header["alg"])
		}
		return []byte(s.deps.Conf.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errInvalidToken
	}
	return token, nil
}

// adminMiddleware must run after adminAuthMiddleware.
func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		if !claims.IsAdmin() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getContextUser loads the User behind the context token. A token of a deleted user is unauthorized.
func getContextUser(ctx echo.Context, svc *user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

func (s *Server) newCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !s.deps.Conf.Debug,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) setSessionCookie(ctx echo.Context, name, token string) {
	ctx.SetCookie(s.newCookie(name, token, int(s.deps.Conf.Server.JWTExpirationDelta.Seconds())))
}

func (s *Server) clearSessionCookies(ctx echo.Context) {
	ctx.SetCookie(s.newCookie(userCookie, "", -1))
	ctx.SetCookie(s.newCookie(adminCookie, "", -1))
}
