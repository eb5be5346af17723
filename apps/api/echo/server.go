package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/rs/cors"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/booking"
	"github.com/kidoparadise/kido/core/catalog"
	"github.com/kidoparadise/kido/core/order"
	"github.com/kidoparadise/kido/core/review"
	"github.com/kidoparadise/kido/core/user"
	filestore "github.com/kidoparadise/kido/storage/files"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc    *user.Service
		CatalogSvc *catalog.Service
		OrderSvc   *order.Service
		BookingSvc *booking.Service
		ReviewSvc  *review.Service
		Files      *filestore.Store

		// StatusCheck reports whether the database is reachable.
		StatusCheck func(ctx context.Context) error
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal

		authMiddleware         echo.MiddlewareFunc
		adminAuthMiddleware    echo.MiddlewareFunc
		optionalAuthMiddleware echo.MiddlewareFunc
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(echo.WrapMiddleware(cors.New(cors.Options{
		AllowedOrigins:   conf.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Range"},
		ExposedHeaders:   []string{"Content-Range", "Content-Length", "Accept-Ranges"},
		AllowCredentials: true,
	}).Handler))
	if conf.Server.BodyLimit != "" {
		s.app.Use(middleware.BodyLimit(conf.Server.BodyLimit))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug
	s.setupAuth()

	s.app.GET("/", home)
	s.app.GET("/health", s.health)
	if s.deps.Files != nil {
		uploads := http.StripPrefix(filestore.URLPrefix, http.FileServer(s.deps.Files.HTTPDir()))
		s.app.GET(filestore.URLPrefix+"*", echo.WrapHandler(uploads))
	}

	g := s.app.Group("/api")
	s.registerUserAPI(g)
	s.registerCatalogAPI(g)
	s.registerOrderAPI(g)
	s.registerBookingAPI(g)
	s.registerReviewAPI(g)
	s.registerMediaAPI(g)
}

// Start blocks until the server stops. Failures are reported on Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the owner of the Server to shut it down.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Kido Paradise API!")
}

func (s *Server) health(ctx echo.Context) error {
	status := "ok"
	if s.deps.StatusCheck != nil {
		if err := s.deps.StatusCheck(ctx.Request().Context()); err != nil {
			s.deps.Logger.Error("health: database unavailable", err)
			return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "db not ready"})
		}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": status, "build": s.deps.Conf.Build})
}

type successResponse struct {
	Success string `json:"success"`
}
