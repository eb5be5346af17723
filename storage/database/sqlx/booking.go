package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/booking"
)

const (
	reservationColumns = `id, user_id, professional_id, scheduled_at, message, status, course_id, created_at, updated_at`
	slotColumns        = `id, professional_id, start_time, end_time, status, created_at`

	reservationSelect = `SELECT
		r.id, r.user_id, r.professional_id, r.scheduled_at, r.message, r.status, r.course_id, r.created_at, r.updated_at,
		u.name AS "user.name", u.email AS "user.email",
		p.name AS "professional.name", p.specialty AS "professional.specialty",
		v.title AS course_title, v.slug AS course_slug, v.cover_image_url AS course_cover_image_url
		FROM reservations r
		JOIN users u ON u.id = r.user_id
		JOIN professionals p ON p.id = r.professional_id
		LEFT JOIN videos v ON v.id = r.course_id`
)

type (
	bookingRepository struct {
		repository
	}

	reservationRow struct {
		booking.ReservationDetail
		CourseTitle         null.String `db:"course_title"`
		CourseSlug          null.String `db:"course_slug"`
		CourseCoverImageURL null.String `db:"course_cover_image_url"`
	}
)

var _ booking.Repository = (*bookingRepository)(nil) // interface compliance check

func NewBookingRepository(exec core.DBExecutor) *bookingRepository {
	return &bookingRepository{repository{exec: exec}}
}

func (row reservationRow) detail() booking.ReservationDetail {
	res := row.ReservationDetail
	if row.CourseTitle.Valid {
		res.Course = &booking.CourseInfo{
			Title:         row.CourseTitle.String,
			Slug:          row.CourseSlug.String,
			CoverImageURL: row.CourseCoverImageURL,
		}
	}
	return res
}

func (repo bookingRepository) CreateReservation(ctx context.Context, r booking.Reservation, exec ...core.DBExecutor) (booking.Reservation, error) {
	q := `INSERT INTO reservations (` + reservationColumns + `)
		VALUES (:id, :user_id, :professional_id, :scheduled_at, :message, :status, :course_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, r); err != nil {
		return booking.Reservation{}, errors.Wrap(err, "inserting reservation")
	}
	return r, nil
}

func (repo bookingRepository) GetReservation(ctx context.Context, id string, exec ...core.DBExecutor) (booking.ReservationDetail, error) {
	if !isUUID(id) {
		return booking.ReservationDetail{}, booking.ErrNotFound
	}
	var row reservationRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, reservationSelect+` WHERE r.id = $1`, id); err != nil {
		return booking.ReservationDetail{}, trapNoRowsErr(err, booking.ErrNotFound, "finding reservation")
	}
	return row.detail(), nil
}

func (repo bookingRepository) QueryReservations(ctx context.Context, filter booking.ReservationFilter, exec ...core.DBExecutor) ([]booking.ReservationDetail, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.UserID != "" {
		conds = append(conds, `r.user_id = ?`)
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conds = append(conds, `r.status = ?`)
		args = append(args, filter.Status)
	}
	q := reservationSelect
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	q += ` ORDER BY r.created_at DESC`

	var rows []reservationRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, sqlx.Rebind(sqlx.DOLLAR, q), args...); err != nil {
		return nil, errors.Wrap(err, "querying reservations")
	}
	res := make([]booking.ReservationDetail, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.detail())
	}
	return res, nil
}

func (repo bookingRepository) UpdateReservationStatus(ctx context.Context, id, status string, updatedAt time.Time, exec ...core.DBExecutor) error {
	q := `UPDATE reservations SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, q, id, status, updatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "updating reservation status")
	}
	return checkAffected(res, booking.ErrNotFound, "updating reservation status")
}

func (repo bookingRepository) CreateSlots(ctx context.Context, slots []booking.Slot, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	q := `INSERT INTO availability_slots (` + slotColumns + `)
		VALUES (:id, :professional_id, :start_time, :end_time, :status, :created_at)
		ON CONFLICT (professional_id, start_time) DO NOTHING`

	var inserted int
	for _, slot := range slots {
		res, err := sqlx.NamedExecContext(ctx, exe, q, slot)
		if err != nil {
			return inserted, errors.Wrap(err, "inserting slot")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, errors.Wrap(err, "inserting slot")
		}
		inserted += int(n)
	}
	return inserted, nil
}

func (repo bookingRepository) SetSlotsStatus(ctx context.Context, professionalID string, start time.Time, status string, exec ...core.DBExecutor) (int, error) {
	q := `UPDATE availability_slots SET status = $3 WHERE professional_id = $1 AND start_time = $2`
	res, err := repo.getExec(exec).ExecContext(ctx, q, professionalID, start.UTC(), status)
	if err != nil {
		return 0, errors.Wrap(err, "updating slots status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "updating slots status")
	}
	return int(n), nil
}

func (repo bookingRepository) QueryAvailableSlots(ctx context.Context, professionalID string, from time.Time, exec ...core.DBExecutor) ([]booking.Slot, error) {
	slots := make([]booking.Slot, 0)
	if !isUUID(professionalID) {
		return slots, nil
	}
	q := `SELECT ` + slotColumns + ` FROM availability_slots
		WHERE professional_id = $1 AND status = $2 AND start_time >= $3
		ORDER BY start_time ASC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &slots, q, professionalID, booking.SlotAvailable, from.UTC()); err != nil {
		return nil, errors.Wrap(err, "querying available slots")
	}
	return slots, nil
}
