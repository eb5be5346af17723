package inmemdb

import (
	"context"
	"sort"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/review"
)

type reviewRepository struct {
	db *DB
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *DB) *reviewRepository {
	return &reviewRepository{db: db}
}

func (repo *reviewRepository) CreateReview(ctx context.Context, r review.Review, exec ...core.DBExecutor) (review.Review, error) {
	defer repo.db.lockWrite(exec)()

	for _, rv := range repo.db.data.reviews {
		if rv.UserID == r.UserID && rv.VideoID == r.VideoID {
			return review.Review{}, core.NewConflictError(review.ErrExists.Message)
		}
	}
	repo.db.data.reviews[r.ID] = r
	return r, nil
}

func (repo *reviewRepository) QueryVideoReviews(ctx context.Context, videoID string, exec ...core.DBExecutor) ([]review.Review, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	reviews := make([]review.Review, 0)
	for _, r := range repo.db.data.reviews {
		if r.VideoID != videoID {
			continue
		}
		if usr, ok := repo.db.data.users[r.UserID]; ok {
			r.User = review.Author{Name: usr.Name}
		}
		reviews = append(reviews, r)
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.After(reviews[j].CreatedAt) })
	return reviews, nil
}

func (repo *reviewRepository) ReviewExists(ctx context.Context, userID, videoID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, r := range repo.db.data.reviews {
		if r.UserID == userID && r.VideoID == videoID {
			return true, nil
		}
	}
	return false, nil
}
