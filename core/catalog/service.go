package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core"
)

var (
	// errors
	ErrCategoryNotFound     = core.NewNotFoundError("category not found")
	ErrProfessionalNotFound = core.NewNotFoundError("professional not found")
	ErrVideoNotFound        = core.NewNotFoundError("video not found")
	ErrCategoryExists       = core.NewConflictError("a category with this name already exists")
	ErrSlugExists           = core.NewConflictError("this slug is already taken")
	errInvalidName          = errors.New("name must contain at least one letter or digit")
	errBlankField           = "this field cannot be blank"

	maxSlugAttempts = 1000
)

type Repository interface {
	CreateCategory(ctx context.Context, cat Category, exec ...core.DBExecutor) (Category, error)
	QueryCategories(ctx context.Context, exec ...core.DBExecutor) ([]Category, error)
	GetCategoryByID(ctx context.Context, id string, exec ...core.DBExecutor) (Category, error)
	GetCategoryBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (Category, error)
	// CategoryNameExists does a case-insensitive match on Category.Name.
	CategoryNameExists(ctx context.Context, name string, exec ...core.DBExecutor) (bool, error)
	CategorySlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error)

	CreateProfessional(ctx context.Context, pro Professional, exec ...core.DBExecutor) (Professional, error)
	QueryProfessionals(ctx context.Context, exec ...core.DBExecutor) ([]Professional, error)
	GetProfessionalByID(ctx context.Context, id string, exec ...core.DBExecutor) (Professional, error)

	CreateVideo(ctx context.Context, vid Video, exec ...core.DBExecutor) (Video, error)
	UpdateVideo(ctx context.Context, vid Video, exec ...core.DBExecutor) (Video, error)
	// GetVideoByID and GetVideoBySlug load Video.Category and Video.Professional.
	GetVideoByID(ctx context.Context, id string, exec ...core.DBExecutor) (Video, error)
	GetVideoBySlug(ctx context.Context, slug string, exec ...core.DBExecutor) (Video, error)
	// QueryVideos applies AND operation on available VideoFilter fields.
	// VideoFilter.Search does a case-insensitive match on Video.Title or Video.Description.
	QueryVideos(ctx context.Context, filter VideoFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Video, error)
	// VideoSlugExists ignores the Video identified by excludedID.
	VideoSlugExists(ctx context.Context, slug, excludedID string, exec ...core.DBExecutor) (bool, error)
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// uniqueSlug appends "-2", "-3", ... to base until exists reports the slug as free.
func uniqueSlug(base string, exists func(string) (bool, error)) (string, error) {
	slug := base
	for i := 2; i < maxSlugAttempts; i++ {
		taken, err := exists(slug)
		if err != nil {
			return "", err
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
	return "", ErrSlugExists
}

// Categories

// CreateCategory derives a unique slug from the name. Names are unique case-insensitively.
func (svc *Service) CreateCategory(ctx context.Context, nc NewCategory) (Category, error) {
	name := core.CleanString(nc.Name)
	if name == "" {
		return Category{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: errBlankField})
	}
	base := core.Slugify(name)
	if base == "" {
		return Category{}, core.NewValidationError(errInvalidName, core.FieldError{Field: "name", Error: errInvalidName.Error()})
	}

	exists, err := svc.repo.CategoryNameExists(ctx, name)
	if err != nil {
		return Category{}, errors.Wrap(err, "checking category name")
	}
	if exists {
		return Category{}, ErrCategoryExists
	}

	slug, err := uniqueSlug(base, func(s string) (bool, error) { return svc.repo.CategorySlugExists(ctx, s) })
	if err != nil {
		return Category{}, errors.Wrap(err, "generating category slug")
	}

	cat, err := svc.repo.CreateCategory(ctx, Category{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      slug,
		CreatedAt: svc.now().UTC(),
	})
	if err != nil {
		if core.IsConflict(err) {
			return Category{}, ErrCategoryExists
		}
		return Category{}, errors.Wrap(err, "creating category")
	}
	return cat, nil
}

// Categories are sorted by name.
func (svc *Service) Categories(ctx context.Context) ([]Category, error) {
	return svc.repo.QueryCategories(ctx)
}

// Professionals

func (svc *Service) CreateProfessional(ctx context.Context, np NewProfessional) (Professional, error) {
	return svc.repo.CreateProfessional(ctx, Professional{
		ID:        uuid.New().String(),
		Name:      np.Name,
		Specialty: np.Specialty,
		PhotoURL:  nullString(np.PhotoURL),
		CreatedAt: svc.now().UTC(),
	})
}

// Professionals are sorted by name.
func (svc *Service) Professionals(ctx context.Context) ([]Professional, error) {
	return svc.repo.QueryProfessionals(ctx)
}

func (svc *Service) GetProfessional(ctx context.Context, id string) (Professional, error) {
	return svc.repo.GetProfessionalByID(ctx, id)
}

// Videos

func (svc *Service) videoSlug(ctx context.Context, source, excludedID string) (string, error) {
	base := core.Slugify(source)
	if base == "" {
		base = "course"
	}
	return uniqueSlug(base, func(s string) (bool, error) { return svc.repo.VideoSlugExists(ctx, s, excludedID) })
}

// checkRefs makes sure the referenced Category and Professional exist.
func (svc *Service) checkRefs(ctx context.Context, categoryID, professionalID string) error {
	var flds []core.FieldError
	if categoryID != "" {
		if _, err := svc.repo.GetCategoryByID(ctx, categoryID); err != nil {
			if errors.Cause(err) != ErrCategoryNotFound {
				return errors.Wrap(err, "finding category")
			}
			flds = append(flds, core.FieldError{Field: "categoryId", Error: ErrCategoryNotFound.Error()})
		}
	}
	if professionalID != "" {
		if _, err := svc.repo.GetProfessionalByID(ctx, professionalID); err != nil {
			if errors.Cause(err) != ErrProfessionalNotFound {
				return errors.Wrap(err, "finding professional")
			}
			flds = append(flds, core.FieldError{Field: "professionalId", Error: ErrProfessionalNotFound.Error()})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// CreateVideo derives the slug from NewVideo.Slug, or from the title when blank.
func (svc *Service) CreateVideo(ctx context.Context, nv NewVideo) (Video, error) {
	if err := svc.checkRefs(ctx, nv.CategoryID, nv.ProfessionalID); err != nil {
		return Video{}, err
	}

	source := nv.Slug
	if source == "" {
		source = nv.Title
	}
	slug, err := svc.videoSlug(ctx, source, "")
	if err != nil {
		return Video{}, errors.Wrap(err, "generating video slug")
	}

	vType := nv.Type
	if vType == "" {
		vType = TypeVideo
	}
	now := svc.now().UTC()
	vid := Video{
		ID:             uuid.New().String(),
		Slug:           slug,
		Title:          nv.Title,
		Description:    nv.Description,
		Price:          *nv.Price,
		Type:           vType,
		VideoURL:       nullString(nv.VideoURL),
		CoverImageURL:  nullString(nv.CoverImageURL),
		ArticleContent: nullString(nv.ArticleContent),
		CategoryID:     nv.CategoryID,
		ProfessionalID: nv.ProfessionalID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err = svc.repo.CreateVideo(ctx, vid); err != nil {
		return Video{}, errors.Wrap(err, "creating video")
	}
	return svc.repo.GetVideoByID(ctx, vid.ID)
}

// UpdateVideo applies a partial update. Article content is only kept for ARTICLE videos.
func (svc *Service) UpdateVideo(ctx context.Context, id string, uv UpdateVideo) (Video, error) {
	vid, err := svc.repo.GetVideoByID(ctx, id)
	if err != nil {
		return Video{}, err
	}

	var blanks []core.FieldError
	if uv.Title != nil && *uv.Title == "" {
		blanks = append(blanks, core.FieldError{Field: "title", Error: errBlankField})
	}
	if uv.Description != nil && *uv.Description == "" {
		blanks = append(blanks, core.FieldError{Field: "description", Error: errBlankField})
	}
	if len(blanks) > 0 {
		return Video{}, core.NewValidationError(nil, blanks...)
	}

	var catID, proID string
	if uv.CategoryID != nil && *uv.CategoryID != vid.CategoryID {
		catID = *uv.CategoryID
	}
	if uv.ProfessionalID != nil && *uv.ProfessionalID != vid.ProfessionalID {
		proID = *uv.ProfessionalID
	}
	if err = svc.checkRefs(ctx, catID, proID); err != nil {
		return Video{}, err
	}

	var slugSource string
	switch {
	case uv.Slug != nil && *uv.Slug != "":
		slugSource = *uv.Slug
	case uv.Title != nil && *uv.Title != vid.Title:
		slugSource = *uv.Title
	}
	if slugSource != "" {
		if vid.Slug, err = svc.videoSlug(ctx, slugSource, vid.ID); err != nil {
			return Video{}, errors.Wrap(err, "generating video slug")
		}
	}

	if uv.Title != nil {
		vid.Title = *uv.Title
	}
	if uv.Description != nil {
		vid.Description = *uv.Description
	}
	if uv.Price != nil {
		vid.Price = *uv.Price
	}
	if uv.Type != nil && *uv.Type != "" {
		vid.Type = *uv.Type
	}
	if uv.VideoURL != nil {
		vid.VideoURL = nullString(*uv.VideoURL)
	}
	if uv.CoverImageURL != nil {
		vid.CoverImageURL = nullString(*uv.CoverImageURL)
	}
	if catID != "" {
		vid.CategoryID = catID
	}
	if proID != "" {
		vid.ProfessionalID = proID
	}
	if vid.Type == TypeArticle {
		if uv.ArticleContent != nil {
			vid.ArticleContent = nullString(*uv.ArticleContent)
		}
	} else {
		vid.ArticleContent = nullString("")
	}
	vid.UpdatedAt = svc.now().UTC()

	if _, err = svc.repo.UpdateVideo(ctx, vid); err != nil {
		return Video{}, errors.Wrap(err, "updating video")
	}
	return svc.repo.GetVideoByID(ctx, vid.ID)
}

func (svc *Service) GetVideo(ctx context.Context, id string) (Video, error) {
	return svc.repo.GetVideoByID(ctx, id)
}

// GetVideoBySlugs finds a Video by its slug, making sure it belongs to the category slug.
func (svc *Service) GetVideoBySlugs(ctx context.Context, categorySlug, videoSlug string) (Video, error) {
	vid, err := svc.repo.GetVideoBySlug(ctx, core.CleanString(videoSlug, true /* lower */))
	if err != nil {
		return Video{}, err
	}
	if vid.Category == nil || vid.Category.Slug != core.CleanString(categorySlug, true /* lower */) {
		return Video{}, ErrVideoNotFound
	}
	return vid, nil
}

func (svc *Service) QueryVideos(ctx context.Context, filter VideoFilter, ordering []core.DBOrdering) ([]Video, error) {
	filter.Clean()
	return svc.repo.QueryVideos(ctx, filter, ordering)
}
