package review

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kidoparadise/kido/core"
)

const (
	MinRating = 1
	MaxRating = 5
)

type Author struct {
	Name string `json:"name" db:"name"`
}

type Review struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	VideoID   string    `json:"videoId" db:"video_id"`
	Rating    int       `json:"rating" db:"rating"`
	Message   string    `json:"message" db:"message"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	User Author `json:"user" db:"user"`
}

type NewReview struct {
	VideoID string `json:"videoId" validate:"required"`
	// Rating is clamped to [MinRating, MaxRating].
	Rating  *int   `json:"rating" validate:"required"`
	Message string `json:"message" validate:"required,max=2000"`
}

func (nr *NewReview) Validate(validate *validator.Validate) error {
	nr.VideoID = core.CleanString(nr.VideoID)
	nr.Message = core.CleanString(nr.Message)
	return validate.Struct(nr)
}

func clampRating(r int) int {
	switch {
	case r < MinRating:
		return MinRating
	case r > MaxRating:
		return MaxRating
	default:
		return r
	}
}
