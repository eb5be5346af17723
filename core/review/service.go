package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/user"
)

var (
	// errors
	ErrNotPurchased = core.NewPermissionError("you must purchase this course to review it")
	ErrExists       = core.NewConflictError("you already reviewed this course")
)

type (
	Repository interface {
		// CreateReview fails with a *core.ConflictError when the user already reviewed the video.
		CreateReview(ctx context.Context, r Review, exec ...core.DBExecutor) (Review, error)
		// QueryVideoReviews returns the reviews of a video with their author, newest first.
		QueryVideoReviews(ctx context.Context, videoID string, exec ...core.DBExecutor) ([]Review, error)
		ReviewExists(ctx context.Context, userID, videoID string, exec ...core.DBExecutor) (bool, error)
	}

	LibraryChecker interface {
		InLibrary(ctx context.Context, userID, videoID string) (bool, error)
	}

	Service struct {
		repo    Repository
		library LibraryChecker
	}
)

func NewService(repo Repository, library LibraryChecker) *Service {
	return &Service{repo: repo, library: library}
}

// Eligible reports whether the user may review the video: they must own it in their library.
func (svc *Service) Eligible(ctx context.Context, userID, videoID string) (bool, error) {
	return svc.library.InLibrary(ctx, userID, videoID)
}

// Create publishes the single Review a library owner may leave on a video.
func (svc *Service) Create(ctx context.Context, requester user.User, nr NewReview) (Review, error) {
	ok, err := svc.Eligible(ctx, requester.ID, nr.VideoID)
	if err != nil {
		return Review{}, errors.Wrap(err, "checking library")
	}
	if !ok {
		return Review{}, ErrNotPurchased
	}

	exists, err := svc.repo.ReviewExists(ctx, requester.ID, nr.VideoID)
	if err != nil {
		return Review{}, errors.Wrap(err, "checking existing review")
	}
	if exists {
		return Review{}, ErrExists
	}

	r, err := svc.repo.CreateReview(ctx, Review{
		ID:        uuid.New().String(),
		UserID:    requester.ID,
		VideoID:   nr.VideoID,
		Rating:    clampRating(*nr.Rating),
		Message:   nr.Message,
		CreatedAt: time.Now().UTC(),
		User:      Author{Name: requester.Name},
	})
	if err != nil {
		if core.IsConflict(err) {
			return Review{}, ErrExists
		}
		return Review{}, errors.Wrap(err, "creating review")
	}
	return r, nil
}

func (svc *Service) VideoReviews(ctx context.Context, videoID string) ([]Review, error) {
	reviews, err := svc.repo.QueryVideoReviews(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []Review{}
	}
	return reviews, nil
}
