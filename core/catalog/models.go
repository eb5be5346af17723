package catalog

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/kidoparadise/kido/core"
)

// Video types
const (
	TypeVideo   = "VIDEO"
	TypeArticle = "ARTICLE"
)

type Category struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

type Professional struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Specialty string      `json:"specialty" db:"specialty"`
	PhotoURL  null.String `json:"photoUrl" db:"photo_url"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}

// Video is a paid course: either a streamed video or an article.
type Video struct {
	ID             string      `json:"id" db:"id"`
	Slug           string      `json:"slug" db:"slug"`
	Title          string      `json:"title" db:"title"`
	Description    string      `json:"description" db:"description"`
	Price          float64     `json:"price" db:"price"`
	Type           string      `json:"type" db:"type"`
	VideoURL       null.String `json:"videoUrl" db:"video_url"`
	CoverImageURL  null.String `json:"coverImageUrl" db:"cover_image_url"`
	ArticleContent null.String `json:"articleContent" db:"article_content"`
	CategoryID     string      `json:"categoryId" db:"category_id"`
	ProfessionalID string      `json:"professionalId" db:"professional_id"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"`

	Category     *Category     `json:"category,omitempty" db:"-"`
	Professional *Professional `json:"professional,omitempty" db:"-"`
}

type NewCategory struct {
	Name string `json:"name" validate:"required,max=120"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

type NewProfessional struct {
	Name      string `json:"name" validate:"required"`
	Specialty string `json:"specialty"`
	PhotoURL  string `json:"photoUrl"`
}

func (np *NewProfessional) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.Specialty = core.CleanString(np.Specialty)
	np.PhotoURL = core.CleanString(np.PhotoURL)
	return validate.Struct(np)
}

type NewVideo struct {
	Title          string   `json:"title" validate:"required"`
	Slug           string   `json:"slug"`
	Description    string   `json:"description" validate:"required"`
	Price          *float64 `json:"price" validate:"required,gte=0"`
	Type           string   `json:"type" validate:"omitempty,oneof=VIDEO ARTICLE"`
	VideoURL       string   `json:"videoUrl"`
	CoverImageURL  string   `json:"coverImageUrl"`
	ArticleContent string   `json:"articleContent"`
	CategoryID     string   `json:"categoryId" validate:"required"`
	ProfessionalID string   `json:"professionalId" validate:"required"`
}

func (nv *NewVideo) Validate(validate *validator.Validate) error {
	nv.Title = core.CleanString(nv.Title)
	nv.Slug = core.CleanString(nv.Slug)
	nv.Description = core.CleanString(nv.Description)
	nv.Type = core.CleanString(nv.Type)
	nv.VideoURL = core.CleanString(nv.VideoURL)
	nv.CoverImageURL = core.CleanString(nv.CoverImageURL)
	nv.CategoryID = core.CleanString(nv.CategoryID)
	nv.ProfessionalID = core.CleanString(nv.ProfessionalID)
	return validate.Struct(nv)
}

// UpdateVideo is a partial update: nil fields keep their current value.
type UpdateVideo struct {
	Title          *string  `json:"title"`
	Slug           *string  `json:"slug"`
	Description    *string  `json:"description"`
	Price          *float64 `json:"price" validate:"omitempty,gte=0"`
	Type           *string  `json:"type" validate:"omitempty,oneof=VIDEO ARTICLE"`
	VideoURL       *string  `json:"videoUrl"`
	CoverImageURL  *string  `json:"coverImageUrl"`
	ArticleContent *string  `json:"articleContent"`
	CategoryID     *string  `json:"categoryId"`
	ProfessionalID *string  `json:"professionalId"`
}

func (uv *UpdateVideo) Validate(validate *validator.Validate) error {
	for _, s := range []*string{uv.Title, uv.Slug, uv.Description, uv.Type, uv.VideoURL, uv.CoverImageURL, uv.CategoryID, uv.ProfessionalID} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	return validate.Struct(uv)
}

type VideoFilter struct {
	CategorySlug string `query:"category"`
	Search       string `query:"search"`
	Type         string `query:"type"`
}

func (f *VideoFilter) Clean() {
	f.CategorySlug = core.CleanString(f.CategorySlug, true /* lower */)
	f.Search = core.CleanString(f.Search)
	f.Type = core.CleanString(f.Type)
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}
