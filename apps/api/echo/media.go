package echoapi

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core"
)

var (
	errNoMedia = core.NewNotFoundError("video file not found")

	videoMimeTypes = map[string]string{
		".mp4":  "video/mp4",
		".m4v":  "video/mp4",
		".webm": "video/webm",
		".ogv":  "video/ogg",
		".mov":  "video/quicktime",
		".mkv":  "video/x-matroska",
	}
)

func (s *Server) registerMediaAPI(g *echo.Group) {
	admin := []echo.MiddlewareFunc{s.adminAuthMiddleware, adminMiddleware}

	g.GET("/stream/:videoId", s.stream, s.authMiddleware)
	g.POST("/admin/upload-cover", s.uploadCover, admin...)
	g.POST("/admin/upload-image", s.uploadImage, admin...)
	g.POST("/admin/upload-video", s.uploadVideo, admin...)
}

// stream serves the video file of a purchased course. Range requests get partial responses.
func (s *Server) stream(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	videoID := ctx.Param("videoId")

	ok, err := s.deps.OrderSvc.HasAccess(reqCtx, claims.Subject, videoID)
	if err != nil {
		return errors.Wrap(err, "checking access")
	}
	if !ok {
		return errHttpForbidden
	}

	vid, err := s.deps.CatalogSvc.GetVideo(reqCtx, videoID)
	if err != nil {
		return errors.Wrap(err, "finding video")
	}
	if !vid.VideoURL.Valid || vid.VideoURL.String == "" {
		return errNoMedia
	}
	f, info, err := s.deps.Files.Open(vid.VideoURL.String)
	if err != nil {
		if core.IsNotFound(err) {
			return errNoMedia
		}
		return errors.Wrap(err, "opening video file")
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(info.Name()))
	ctype, ok := videoMimeTypes[ext]
	if !ok {
		if ctype = mime.TypeByExtension(ext); ctype == "" {
			ctype = echo.MIMEOctetStream
		}
	}
	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, ctype)
	http.ServeContent(resp, ctx.Request(), info.Name(), info.ModTime(), f)
	return nil
}

func (s *Server) uploadCover(ctx echo.Context) error {
	f, fh, err := uploadedFile(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	url, err := s.deps.Files.SaveCover(fh.Header.Get(echo.HeaderContentType), f)
	if err != nil {
		return errors.Wrap(err, "saving cover")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"coverImageUrl": url})
}

func (s *Server) uploadImage(ctx echo.Context) error {
	f, fh, err := uploadedFile(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	url, err := s.deps.Files.SaveImage(fh.Filename, f)
	if err != nil {
		return errors.Wrap(err, "saving image")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"imageUrl": url})
}

func (s *Server) uploadVideo(ctx echo.Context) error {
	f, fh, err := uploadedFile(ctx)
	if err != nil {
		return err
	}
	defer f.Close()

	url, err := s.deps.Files.SaveVideo(fh.Filename, f)
	if err != nil {
		return errors.Wrap(err, "saving video")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"videoUrl": url})
}
