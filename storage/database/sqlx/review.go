package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/review"
)

type reviewRepository struct {
	repository
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(exec core.DBExecutor) *reviewRepository {
	return &reviewRepository{repository{exec: exec}}
}

func (repo reviewRepository) CreateReview(ctx context.Context, r review.Review, exec ...core.DBExecutor) (review.Review, error) {
	q := `INSERT INTO reviews (id, user_id, video_id, rating, message, created_at)
		VALUES (:id, :user_id, :video_id, :rating, :message, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, r); err != nil {
		return review.Review{}, trapUniqueErr(err, review.ErrExists.Message, "inserting review")
	}
	return r, nil
}

func (repo reviewRepository) QueryVideoReviews(ctx context.Context, videoID string, exec ...core.DBExecutor) ([]review.Review, error) {
	reviews := make([]review.Review, 0)
	if !isUUID(videoID) {
		return reviews, nil
	}
	q := `SELECT r.id, r.user_id, r.video_id, r.rating, r.message, r.created_at, u.name AS "user.name"
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.video_id = $1
		ORDER BY r.created_at DESC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &reviews, q, videoID); err != nil {
		return nil, errors.Wrap(err, "querying reviews")
	}
	return reviews, nil
}

func (repo reviewRepository) ReviewExists(ctx context.Context, userID, videoID string, exec ...core.DBExecutor) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM reviews WHERE user_id = $1 AND video_id = $2)`
	return repo.exists(ctx, repo.getExec(exec), "checking review", q, userID, videoID)
}
