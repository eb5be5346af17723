package booking

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/kidoparadise/kido/core"
)

// Reservation statuses
const (
	StatusPending   = "pending"
	StatusValidated = "VALIDATED"
	StatusCancelled = "CANCELLED"
)

// Slot statuses
const (
	SlotAvailable = "available"
	SlotBooked    = "booked"
)

// Admin actions on a Reservation
const (
	ActionValidate = "validate"
	ActionCancel   = "cancel"
)

// Slot generation window, in the configured time zone.
const (
	dayStartHour = 8
	dayEndHour   = 17
	slotDuration = 30 * time.Minute
)

// Reservation is a one-to-one session request with a professional.
type Reservation struct {
	ID             string      `json:"id" db:"id"`
	UserID         string      `json:"userId" db:"user_id"`
	ProfessionalID string      `json:"professionalId" db:"professional_id"`
	ScheduledAt    time.Time   `json:"scheduledAt" db:"scheduled_at"`
	Message        null.String `json:"message" db:"message"`
	Status         string      `json:"status" db:"status"`
	CourseID       null.String `json:"courseId" db:"course_id"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"`
}

type (
	PersonInfo struct {
		Name  string `json:"name" db:"name"`
		Email string `json:"email,omitempty" db:"email"`
	}

	ProfessionalInfo struct {
		Name      string `json:"name" db:"name"`
		Specialty string `json:"specialty" db:"specialty"`
	}

	CourseInfo struct {
		Title         string      `json:"title" db:"title"`
		Slug          string      `json:"slug" db:"slug"`
		CoverImageURL null.String `json:"coverImageUrl" db:"cover_image_url"`
	}

	// ReservationDetail is a Reservation with the names of the parties involved.
	ReservationDetail struct {
		Reservation
		User         PersonInfo       `json:"user" db:"user"`
		Professional ProfessionalInfo `json:"professional" db:"professional"`
		Course       *CourseInfo      `json:"course" db:"-"`
	}
)

type Slot struct {
	ID             string    `json:"id" db:"id"`
	ProfessionalID string    `json:"professionalId" db:"professional_id"`
	StartTime      time.Time `json:"startTime" db:"start_time"`
	EndTime        time.Time `json:"endTime" db:"end_time"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

type ReservationFilter struct {
	UserID string
	Status string
}

type NewReservation struct {
	ProfessionalID string `json:"professionalId" validate:"required"`
	// Date is either RFC 3339 or a local "2006-01-02T15:04" time in the configured time zone.
	Date     string `json:"date" validate:"required"`
	Message  string `json:"message" validate:"max=2000"`
	CourseID string `json:"courseId"`
}

func (nr *NewReservation) Validate(validate *validator.Validate) error {
	nr.ProfessionalID = core.CleanString(nr.ProfessionalID)
	nr.Date = core.CleanString(nr.Date)
	nr.Message = core.CleanString(nr.Message)
	nr.CourseID = core.CleanString(nr.CourseID)
	return validate.Struct(nr)
}

type ReservationAction struct {
	Action string `json:"action" validate:"required,oneof=validate cancel"`
}

func (ra *ReservationAction) Validate(validate *validator.Validate) error {
	ra.Action = core.CleanString(ra.Action, true /* lower */)
	return validate.Struct(ra)
}

type SlotGeneration struct {
	Date string `json:"date" validate:"required,date"`
}

func (sg *SlotGeneration) Validate(validate *validator.Validate) error {
	sg.Date = core.CleanString(sg.Date)
	return validate.Struct(sg)
}
