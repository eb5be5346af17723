package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core/user"
)

func (s *Server) registerUserAPI(g *echo.Group) {
	g.POST("/users/signup", s.signup)
	g.POST("/users/login", s.login)
	g.POST("/users/logout", s.logout)
	g.GET("/me", s.me, s.optionalAuthMiddleware)

	g.POST("/admin/login", s.adminLogin)
	g.GET("/admin/check", s.adminCheck, s.adminAuthMiddleware, adminMiddleware)
}

type (
	LoginResponse struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}

	MeResponse struct {
		User *user.User `json:"user"`
	}
)

func (s *Server) signup(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	usr, err := s.deps.UserSvc.Signup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

// authenticate checks the credentials of the request body and returns a token for the User.
func (s *Server) authenticate(ctx echo.Context) (user.User, string, error) {
	var data user.Credentials
	if err := ctx.Bind(&data); err != nil {
		return user.User{}, "", errors.Wrap(err, "binding to Credentials")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return user.User{}, "", err
	}

	usr, err := s.deps.UserSvc.Authenticate(ctx.Request().Context(), data.Email, data.Password)
	if err != nil {
		if errors.Cause(err) == user.ErrInvalidCredentials {
			return user.User{}, "", errBadCredentials
		}
		return user.User{}, "", errors.Wrap(err, "authenticating")
	}
	token, err := GenerateToken(s.deps.Conf, GetUserClaims(s.deps.Conf, usr))
	if err != nil {
		return user.User{}, "", errors.Wrap(err, "generating token")
	}
	return usr, token, nil
}

func (s *Server) login(ctx echo.Context) error {
	usr, token, err := s.authenticate(ctx)
	if err != nil {
		return err
	}
	s.setSessionCookie(ctx, userCookie, token)
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: usr})
}

func (s *Server) adminLogin(ctx echo.Context) error {
	usr, token, err := s.authenticate(ctx)
	if err != nil {
		return err
	}
	if !usr.IsAdmin() {
		return errHttpForbidden
	}
	s.setSessionCookie(ctx, adminCookie, token)
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: usr})
}

func (s *Server) logout(ctx echo.Context) error {
	s.clearSessionCookies(ctx)
	return ctx.JSON(http.StatusOK, successResponse{Success: "logged out"})
}

// me never fails on a missing or stale session: the user is just null.
func (s *Server) me(ctx echo.Context) error {
	if _, err := getContextClaims(ctx); err != nil {
		return ctx.JSON(http.StatusOK, MeResponse{})
	}
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		if err == errUnauthorized {
			return ctx.JSON(http.StatusOK, MeResponse{})
		}
		return err
	}
	return ctx.JSON(http.StatusOK, MeResponse{User: &usr})
}

func (s *Server) adminCheck(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, MeResponse{User: &usr})
}
