package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core/review"
)

func (s *Server) registerReviewAPI(g *echo.Group) {
	g.GET("/reviews", s.videoReviews)
	g.POST("/reviews", s.createReview, s.authMiddleware)
	g.GET("/reviews/eligibility", s.reviewEligibility, s.optionalAuthMiddleware)
}

type EligibilityResponse struct {
	Eligible bool `json:"eligible"`
}

func (s *Server) videoReviews(ctx echo.Context) error {
	videoID, err := requiredQuery(ctx, "videoId")
	if err != nil {
		return err
	}
	reviews, err := s.deps.ReviewSvc.VideoReviews(ctx.Request().Context(), videoID)
	if err != nil {
		return errors.Wrap(err, "querying reviews")
	}
	return ctx.JSON(http.StatusOK, reviews)
}

func (s *Server) createReview(ctx echo.Context) error {
	usr, err := getContextUser(ctx, s.deps.UserSvc)
	if err != nil {
		return err
	}
	var data review.NewReview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReview")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	r, err := s.deps.ReviewSvc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating review")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (s *Server) reviewEligibility(ctx echo.Context) error {
	videoID, err := requiredQuery(ctx, "videoId")
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return ctx.JSON(http.StatusOK, EligibilityResponse{})
	}
	ok, err := s.deps.ReviewSvc.Eligible(ctx.Request().Context(), claims.Subject, videoID)
	if err != nil {
		return errors.Wrap(err, "checking eligibility")
	}
	return ctx.JSON(http.StatusOK, EligibilityResponse{Eligible: ok})
}
