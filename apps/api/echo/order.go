package echoapi

import (
	"io/ioutil"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core/order"
)

const stripeSignatureHeader = "Stripe-Signature"

func (s *Server) registerOrderAPI(g *echo.Group) {
	auth := s.authMiddleware
	admin := []echo.MiddlewareFunc{s.adminAuthMiddleware, adminMiddleware}
	devPay := []echo.MiddlewareFunc{s.authMiddleware, s.devModeMiddleware}

	g.GET("/orders", s.userOrders, auth)
	g.POST("/orders", s.createOrder, auth)
	g.GET("/orders/:id", s.retrieveOrder, auth)
	g.POST("/orders/:id/pay-online", s.payOnline, devPay...)
	g.POST("/orders/:id/pay", s.payOnline, devPay...)
	g.POST("/orders/:id/pay-transfer", s.payTransfer, auth)
	g.POST("/orders/:id/checkout", s.checkout, auth)
	g.POST("/orders/:id/cancel", s.cancelOrder, auth)
	g.POST("/orders/:id/validate", s.validateOrder, admin...)
	g.POST("/orders/:id/reject", s.rejectOrder, admin...)
	g.POST("/purchase", s.purchase, devPay...)

	g.GET("/admin/orders", s.adminOrders, admin...)
	g.POST("/admin/orders/:id/validate", s.validateOrder, admin...)

	g.POST("/webhooks/stripe", s.stripeWebhook)

	g.GET("/library", s.library, auth)
	g.GET("/access", s.access, s.optionalAuthMiddleware)
	g.GET("/access/:videoId", s.accessStatus, s.optionalAuthMiddleware)
}

// devModeMiddleware guards the instant payment endpoints, which bypass any real gateway.
func (s *Server) devModeMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if !s.deps.Conf.Payment.DevMode {
			return errDevModeDisabled
		}
		return next(ctx)
	}
}

type (
	OrderResponse struct {
		Order order.Order `json:"order"`
	}

	PaymentResponse struct {
		Payment order.Payment `json:"payment"`
	}

	CheckoutRequest struct {
		SuccessURL string `json:"successUrl"`
		CancelURL  string `json:"cancelUrl"`
	}

	CheckoutResponse struct {
		URL string `json:"url"`
	}

	AccessResponse struct {
		HasAccess  bool  `json:"hasAccess"`
		IsLoggedIn *bool `json:"isLoggedIn,omitempty"`
	}
)

func (s *Server) userOrders(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	orders, err := s.deps.OrderSvc.UserOrders(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying orders")
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return ctx.JSON(http.StatusOK, orders)
}

func (s *Server) createOrder(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	var data order.NewOrder
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrder")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	o, err := s.deps.OrderSvc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating order")
	}
	return ctx.JSON(http.StatusCreated, OrderResponse{Order: o})
}

func (s *Server) retrieveOrder(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	o, err := s.deps.OrderSvc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding order")
	}
	return ctx.JSON(http.StatusOK, OrderResponse{Order: o})
}

func (s *Server) payOnline(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	o, err := s.deps.OrderSvc.PayOnline(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "paying order online")
	}
	return ctx.JSON(http.StatusOK, OrderResponse{Order: o})
}

func (s *Server) payTransfer(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	f, fh, err := uploadedFile(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	pmt, err := s.deps.OrderSvc.PayTransfer(ctx.Request().Context(), usr, ctx.Param("id"), fh.Filename, f)
	if err != nil {
		return errors.Wrap(err, "paying order by transfer")
	}
	return ctx.JSON(http.StatusOK, PaymentResponse{Payment: pmt})
}

func (s *Server) checkout(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	var data CheckoutRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckoutRequest")
	}
	id := ctx.Param("id")
	base := s.deps.Conf.FrontendBaseURL + "/orders/" + id
	if data.SuccessURL == "" {
		data.SuccessURL = base + "?payment=success"
	}
	if data.CancelURL == "" {
		data.CancelURL = base + "?payment=cancelled"
	}

	url, err := s.deps.OrderSvc.Checkout(ctx.Request().Context(), usr, id, data.SuccessURL, data.CancelURL)
	if err != nil {
		return errors.Wrap(err, "opening checkout session")
	}
	return ctx.JSON(http.StatusOK, CheckoutResponse{URL: url})
}

func (s *Server) cancelOrder(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	o, err := s.deps.OrderSvc.Cancel(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling order")
	}
	return ctx.JSON(http.StatusOK, OrderResponse{Order: o})
}

func (s *Server) validateOrder(ctx echo.Context) error {
	o, err := s.deps.OrderSvc.Validate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "validating order")
	}
	return ctx.JSON(http.StatusOK, OrderResponse{Order: o})
}

func (s *Server) rejectOrder(ctx echo.Context) error {
	o, err := s.deps.OrderSvc.Reject(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rejecting order")
	}
	return ctx.JSON(http.StatusOK, OrderResponse{Order: o})
}

func (s *Server) purchase(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	var data order.NewOrder
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrder")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	o, err := s.deps.OrderSvc.Purchase(ctx.Request().Context(), usr, data.VideoID)
	if err != nil {
		return errors.Wrap(err, "purchasing video")
	}
	return ctx.JSON(http.StatusCreated, OrderResponse{Order: o})
}

// adminOrders lists a back-office tab: ?status=new|to_validate|failed|done&page=N
func (s *Server) adminOrders(ctx echo.Context) error {
	page, err := s.deps.OrderSvc.AdminOrders(ctx.Request().Context(), ctx.QueryParam("status"), queryInt(ctx, "page", 1))
	if err != nil {
		return errors.Wrap(err, "querying admin orders")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (s *Server) stripeWebhook(ctx echo.Context) error {
	payload, err := ioutil.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading webhook payload")
	}
	if err = s.deps.OrderSvc.CompleteCheckout(ctx.Request().Context(), payload, ctx.Request().Header.Get(stripeSignatureHeader)); err != nil {
		return errors.Wrap(err, "completing checkout")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"received": true})
}

func (s *Server) library(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	entries, err := s.deps.OrderSvc.Library(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying library")
	}
	if entries == nil {
		entries = []order.LibraryEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

// hasAccess is false for anonymous requests.
func (s *Server) hasAccess(ctx echo.Context, videoID string) (bool, bool, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return false, false, nil
	}
	ok, err := s.deps.OrderSvc.HasAccess(ctx.Request().Context(), claims.Subject, videoID)
	if err != nil {
		return false, true, errors.Wrap(err, "checking access")
	}
	return ok, true, nil
}

func (s *Server) access(ctx echo.Context) error {
	videoID, err := requiredQuery(ctx, "videoId")
	if err != nil {
		return err
	}
	ok, _, err := s.hasAccess(ctx, videoID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, AccessResponse{HasAccess: ok})
}

func (s *Server) accessStatus(ctx echo.Context) error {
	ok, loggedIn, err := s.hasAccess(ctx, ctx.Param("videoId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, AccessResponse{HasAccess: ok, IsLoggedIn: &loggedIn})
}
