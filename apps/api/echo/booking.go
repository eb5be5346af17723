package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core/booking"
)

func (s *Server) registerBookingAPI(g *echo.Group) {
	admin := []echo.MiddlewareFunc{s.adminAuthMiddleware, adminMiddleware}

	g.POST("/one-to-one", s.requestReservation, s.authMiddleware)
	g.GET("/one-to-one", s.userReservations, s.authMiddleware)

	g.GET("/professionals/:id/availability", s.availability)
	g.POST("/professionals/:id/availability/generate", s.generateSlots, admin...)

	g.GET("/admin/reservations", s.adminReservations, admin...)
	g.GET("/admin/reservations/:id", s.retrieveReservation, admin...)
	g.PATCH("/admin/reservations/:id", s.applyReservationAction, admin...)
}

type (
	ReservationResponse struct {
		Reservation booking.Reservation `json:"reservation"`
	}

	SlotGenerationResponse struct {
		Message string `json:"message"`
		Count   int    `json:"count"`
	}
)

func (s *Server) requestReservation(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	var data booking.NewReservation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReservation")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	res, err := s.deps.BookingSvc.Request(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "requesting reservation")
	}
	return ctx.JSON(http.StatusCreated, ReservationResponse{Reservation: res})
}

func (s *Server) userReservations(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	res, err := s.deps.BookingSvc.UserReservations(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying reservations")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (s *Server) availability(ctx echo.Context) error {
	slots, err := s.deps.BookingSvc.Availability(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying availability")
	}
	return ctx.JSON(http.StatusOK, slots)
}

func (s *Server) generateSlots(ctx echo.Context) error {
	var data booking.SlotGeneration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SlotGeneration")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	count, err := s.deps.BookingSvc.GenerateSlots(ctx.Request().Context(), ctx.Param("id"), data.Date)
	if err != nil {
		return errors.Wrap(err, "generating slots")
	}
	return ctx.JSON(http.StatusOK, SlotGenerationResponse{Message: "slots generated", Count: count})
}

// adminReservations accepts an optional ?status= filter.
func (s *Server) adminReservations(ctx echo.Context) error {
	res, err := s.deps.BookingSvc.AdminReservations(ctx.Request().Context(), ctx.QueryParam("status"))
	if err != nil {
		return errors.Wrap(err, "querying reservations")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (s *Server) retrieveReservation(ctx echo.Context) error {
	res, err := s.deps.BookingSvc.Detail(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding reservation")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (s *Server) applyReservationAction(ctx echo.Context) error {
	var data booking.ReservationAction
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReservationAction")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	res, err := s.deps.BookingSvc.Apply(ctx.Request().Context(), ctx.Param("id"), data.Action)
	if err != nil {
		return errors.Wrap(err, "applying reservation action")
	}
	return ctx.JSON(http.StatusOK, res)
}
