package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core/catalog"
)

func (s *Server) registerCatalogAPI(g *echo.Group) {
	g.GET("/videos", s.queryVideos)
	g.GET("/videos/by-id", s.videoByID)
	g.GET("/videos/:categorySlug/:videoSlug", s.videoBySlugs)
	g.GET("/categories", s.queryCategories)
	g.GET("/professionals", s.queryProfessionals)

	admin := []echo.MiddlewareFunc{s.adminAuthMiddleware, adminMiddleware}
	g.GET("/admin/categories", s.queryCategories, admin...)
	g.POST("/admin/categories", s.createCategory, admin...)
	g.GET("/admin/professionals", s.queryProfessionals, admin...)
	g.GET("/admin/videos", s.queryVideos, admin...)
	g.POST("/admin/videos", s.createVideo, admin...)
	g.GET("/admin/videos/:id", s.retrieveVideo, admin...)
	g.PATCH("/admin/videos/:id", s.updateVideo, admin...)
}

func (s *Server) queryVideos(ctx echo.Context) error {
	filter := new(catalog.VideoFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []catalog.Video{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	videos, err := s.deps.CatalogSvc.QueryVideos(ctx.Request().Context(), *filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying videos")
	}
	if videos == nil {
		videos = []catalog.Video{}
	}
	return ctx.JSON(http.StatusOK, videos)
}

func (s *Server) videoByID(ctx echo.Context) error {
	id, err := requiredQuery(ctx, "id")
	if err != nil {
		return err
	}
	vid, err := s.deps.CatalogSvc.GetVideo(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding video")
	}
	return ctx.JSON(http.StatusOK, vid)
}

func (s *Server) videoBySlugs(ctx echo.Context) error {
	vid, err := s.deps.CatalogSvc.GetVideoBySlugs(ctx.Request().Context(), ctx.Param("categorySlug"), ctx.Param("videoSlug"))
	if err != nil {
		return errors.Wrap(err, "finding video")
	}
	return ctx.JSON(http.StatusOK, vid)
}

func (s *Server) retrieveVideo(ctx echo.Context) error {
	vid, err := s.deps.CatalogSvc.GetVideo(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding video")
	}
	return ctx.JSON(http.StatusOK, vid)
}

func (s *Server) createVideo(ctx echo.Context) error {
	var data catalog.NewVideo
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewVideo")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	vid, err := s.deps.CatalogSvc.CreateVideo(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating video")
	}
	return ctx.JSON(http.StatusCreated, vid)
}

// updateVideo is a partial update: omitted fields keep their value.
func (s *Server) updateVideo(ctx echo.Context) error {
	var data catalog.UpdateVideo
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateVideo")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	vid, err := s.deps.CatalogSvc.UpdateVideo(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating video")
	}
	return ctx.JSON(http.StatusOK, vid)
}

func (s *Server) queryCategories(ctx echo.Context) error {
	cats, err := s.deps.CatalogSvc.Categories(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	if cats == nil {
		cats = []catalog.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (s *Server) createCategory(ctx echo.Context) error {
	var data catalog.NewCategory
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCategory")
	}
	if err := data.Validate(s.deps.Validate); err != nil {
		return err
	}

	cat, err := s.deps.CatalogSvc.CreateCategory(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (s *Server) queryProfessionals(ctx echo.Context) error {
	pros, err := s.deps.CatalogSvc.Professionals(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying professionals")
	}
	if pros == nil {
		pros = []catalog.Professional{}
	}
	return ctx.JSON(http.StatusOK, pros)
}
