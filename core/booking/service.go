package booking

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/catalog"
	"github.com/kidoparadise/kido/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("reservation not found")
	ErrInvalidDate    = errors.New("invalid date")
	ErrUnknownAction  = errors.New("action must be either validate or cancel")
	localDateTimeFmts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05", "2006-01-02 15:04"}
)

type (
	Repository interface {
		CreateReservation(ctx context.Context, r Reservation, exec ...core.DBExecutor) (Reservation, error)
		GetReservation(ctx context.Context, id string, exec ...core.DBExecutor) (ReservationDetail, error)
		// QueryReservations applies AND operation on available ReservationFilter fields, newest first.
		QueryReservations(ctx context.Context, filter ReservationFilter, exec ...core.DBExecutor) ([]ReservationDetail, error)
		UpdateReservationStatus(ctx context.Context, id, status string, updatedAt time.Time, exec ...core.DBExecutor) error

		// CreateSlots skips slots clashing with an existing (professional, start time) pair
		// and returns the number of inserted slots.
		CreateSlots(ctx context.Context, slots []Slot, exec ...core.DBExecutor) (int, error)
		// SetSlotsStatus updates every slot of the professional starting exactly at start.
		SetSlotsStatus(ctx context.Context, professionalID string, start time.Time, status string, exec ...core.DBExecutor) (int, error)
		// QueryAvailableSlots returns the available slots starting at or after from, in chronological order.
		QueryAvailableSlots(ctx context.Context, professionalID string, from time.Time, exec ...core.DBExecutor) ([]Slot, error)
	}

	CatalogFinder interface {
		GetProfessional(ctx context.Context, id string) (catalog.Professional, error)
		GetVideo(ctx context.Context, id string) (catalog.Video, error)
	}

	Service struct {
		repo    Repository
		tx      core.Transactor
		catalog CatalogFinder
		mailSvc core.EmailService
		loc     *time.Location
		now     func() time.Time
	}
)

func NewService(repo Repository, tx core.Transactor, catalog CatalogFinder, mailSvc core.EmailService, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, tx: tx, catalog: catalog, mailSvc: mailSvc, loc: loc, now: time.Now}
}

// parseDateTime accepts RFC 3339 timestamps and zone-less local times.
func (svc *Service) parseDateTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range localDateTimeFmts {
		if t, err := time.ParseInLocation(layout, s, svc.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// Request records a pending Reservation. Slot availability is not checked here: slots are
// only booked when an admin validates the Reservation.
func (svc *Service) Request(ctx context.Context, requester user.User, nr NewReservation) (Reservation, error) {
	scheduledAt, err := svc.parseDateTime(nr.Date)
	if err != nil {
		return Reservation{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: err.Error()})
	}
	if _, err = svc.catalog.GetProfessional(ctx, nr.ProfessionalID); err != nil {
		if core.IsNotFound(err) {
			return Reservation{}, core.NewValidationError(err, core.FieldError{Field: "professionalId", Error: err.Error()})
		}
		return Reservation{}, errors.Wrap(err, "finding professional")
	}
	if nr.CourseID != "" {
		if _, err = svc.catalog.GetVideo(ctx, nr.CourseID); err != nil {
			if core.IsNotFound(err) {
				return Reservation{}, core.NewValidationError(err, core.FieldError{Field: "courseId", Error: err.Error()})
			}
			return Reservation{}, errors.Wrap(err, "finding course")
		}
	}

	now := svc.now().UTC()
	res, err := svc.repo.CreateReservation(ctx, Reservation{
		ID:             uuid.New().String(),
		UserID:         requester.ID,
		ProfessionalID: nr.ProfessionalID,
		ScheduledAt:    scheduledAt,
		Message:        null.NewString(nr.Message, nr.Message != ""),
		Status:         StatusPending,
		CourseID:       null.NewString(nr.CourseID, nr.CourseID != ""),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	return res, errors.Wrap(err, "creating reservation")
}

// Apply validates or cancels a Reservation and books or frees the matching slot atomically.
func (svc *Service) Apply(ctx context.Context, id, action string) (ReservationDetail, error) {
	var status, slotStatus string
	switch action {
	case ActionValidate:
		status, slotStatus = StatusValidated, SlotBooked
	case ActionCancel:
		status, slotStatus = StatusCancelled, SlotAvailable
	default:
		return ReservationDetail{}, core.NewValidationError(ErrUnknownAction, core.FieldError{Field: "action", Error: ErrUnknownAction.Error()})
	}

	res, err := svc.repo.GetReservation(ctx, id)
	if err != nil {
		return ReservationDetail{}, err
	}
	now := svc.now().UTC()

	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.UpdateReservationStatus(ctx, res.ID, status, now, exec); err != nil {
			return errors.Wrap(err, "updating reservation status")
		}
		_, err := svc.repo.SetSlotsStatus(ctx, res.ProfessionalID, res.ScheduledAt, slotStatus, exec)
		return errors.Wrap(err, "updating slot status")
	})
	if err != nil {
		return ReservationDetail{}, err
	}
	res.Status = status
	res.UpdatedAt = now

	if res.User.Email != "" {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: res.User.Name, Address: res.User.Email}},
			Subject:      "Your one-to-one session",
			TemplateName: "reservation_status",
			TemplateData: map[string]interface{}{
				"Name":             res.User.Name,
				"ProfessionalName": res.Professional.Name,
				"ScheduledAt":      res.ScheduledAt.In(svc.loc).Format("2006-01-02 15:04"),
				"Status":           status,
			},
		})
	}
	return res, nil
}

// GenerateSlots creates the 30 minute slots of a day, 08:00 to 17:00, skipping existing ones.
// It returns the number of slots of the day, not the number of inserted ones.
func (svc *Service) GenerateSlots(ctx context.Context, professionalID, date string) (int, error) {
	day, err := time.ParseInLocation(core.DateLayout, date, svc.loc)
	if err != nil {
		return 0, core.NewValidationError(ErrInvalidDate, core.FieldError{Field: "date", Error: ErrInvalidDate.Error()})
	}
	if _, err = svc.catalog.GetProfessional(ctx, professionalID); err != nil {
		return 0, err
	}

	now := svc.now().UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), dayStartHour, 0, 0, 0, svc.loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), dayEndHour, 0, 0, 0, svc.loc)
	var slots []Slot
	for cursor := start; cursor.Before(end); cursor = cursor.Add(slotDuration) {
		slots = append(slots, Slot{
			ID:             uuid.New().String(),
			ProfessionalID: professionalID,
			StartTime:      cursor.UTC(),
			EndTime:        cursor.Add(slotDuration).UTC(),
			Status:         SlotAvailable,
			CreatedAt:      now,
		})
	}
	if _, err = svc.repo.CreateSlots(ctx, slots); err != nil {
		return 0, errors.Wrap(err, "creating slots")
	}
	return len(slots), nil
}

// Availability lists the upcoming available slots of a professional.
func (svc *Service) Availability(ctx context.Context, professionalID string) ([]Slot, error) {
	slots, err := svc.repo.QueryAvailableSlots(ctx, professionalID, svc.now().UTC())
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

func (svc *Service) UserReservations(ctx context.Context, requester user.User) ([]ReservationDetail, error) {
	return svc.query(ctx, ReservationFilter{UserID: requester.ID})
}

func (svc *Service) AdminReservations(ctx context.Context, status string) ([]ReservationDetail, error) {
	return svc.query(ctx, ReservationFilter{Status: status})
}

func (svc *Service) query(ctx context.Context, filter ReservationFilter) ([]ReservationDetail, error) {
	res, err := svc.repo.QueryReservations(ctx, filter)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []ReservationDetail{}
	}
	return res, nil
}

func (svc *Service) Detail(ctx context.Context, id string) (ReservationDetail, error) {
	return svc.repo.GetReservation(ctx, id)
}
