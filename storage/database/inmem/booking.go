package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/booking"
)

type bookingRepository struct {
	db *DB
}

var _ booking.Repository = (*bookingRepository)(nil) // interface compliance check

func NewBookingRepository(db *DB) *bookingRepository {
	return &bookingRepository{db: db}
}

func slotKey(professionalID string, start time.Time) string {
	return pairKey(professionalID, start.UTC().Format(time.RFC3339Nano))
}

// detail must be called with the read lock held.
func (repo *bookingRepository) detail(r booking.Reservation) booking.ReservationDetail {
	res := booking.ReservationDetail{Reservation: r}
	if usr, ok := repo.db.data.users[r.UserID]; ok {
		res.User = booking.PersonInfo{Name: usr.Name, Email: usr.Email}
	}
	if pro, ok := repo.db.data.professionals[r.ProfessionalID]; ok {
		res.Professional = booking.ProfessionalInfo{Name: pro.Name, Specialty: pro.Specialty}
	}
	if r.CourseID.Valid {
		if vid, ok := repo.db.data.videos[r.CourseID.String]; ok {
			res.Course = &booking.CourseInfo{Title: vid.Title, Slug: vid.Slug, CoverImageURL: vid.CoverImageURL}
		}
	}
	return res
}

func (repo *bookingRepository) CreateReservation(ctx context.Context, r booking.Reservation, exec ...core.DBExecutor) (booking.Reservation, error) {
	defer repo.db.lockWrite(exec)()

	repo.db.data.reservations[r.ID] = r
	return r, nil
}

func (repo *bookingRepository) GetReservation(ctx context.Context, id string, exec ...core.DBExecutor) (booking.ReservationDetail, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.data.reservations[id]; ok {
		return repo.detail(r), nil
	}
	return booking.ReservationDetail{}, booking.ErrNotFound
}

func (repo *bookingRepository) QueryReservations(ctx context.Context, filter booking.ReservationFilter, exec ...core.DBExecutor) ([]booking.ReservationDetail, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]booking.ReservationDetail, 0)
	for _, r := range repo.db.data.reservations {
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		res = append(res, repo.detail(r))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (repo *bookingRepository) UpdateReservationStatus(ctx context.Context, id, status string, updatedAt time.Time, exec ...core.DBExecutor) error {
	defer repo.db.lockWrite(exec)()

	r, ok := repo.db.data.reservations[id]
	if !ok {
		return booking.ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = updatedAt
	repo.db.data.reservations[id] = r
	return nil
}

func (repo *bookingRepository) CreateSlots(ctx context.Context, slots []booking.Slot, exec ...core.DBExecutor) (int, error) {
	defer repo.db.lockWrite(exec)()

	var inserted int
	for _, s := range slots {
		key := slotKey(s.ProfessionalID, s.StartTime)
		if _, ok := repo.db.data.slots[key]; ok {
			continue
		}
		repo.db.data.slots[key] = s
		inserted++
	}
	return inserted, nil
}

func (repo *bookingRepository) SetSlotsStatus(ctx context.Context, professionalID string, start time.Time, status string, exec ...core.DBExecutor) (int, error) {
	defer repo.db.lockWrite(exec)()

	key := slotKey(professionalID, start)
	s, ok := repo.db.data.slots[key]
	if !ok {
		return 0, nil
	}
	s.Status = status
	repo.db.data.slots[key] = s
	return 1, nil
}

func (repo *bookingRepository) QueryAvailableSlots(ctx context.Context, professionalID string, from time.Time, exec ...core.DBExecutor) ([]booking.Slot, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	slots := make([]booking.Slot, 0)
	for _, s := range repo.db.data.slots {
		if s.ProfessionalID == professionalID && s.Status == booking.SlotAvailable && !s.StartTime.Before(from) {
			slots = append(slots, s)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartTime.Before(slots[j].StartTime) })
	return slots, nil
}
