package order

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/catalog"
)

// Order statuses
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Payment methods
const (
	MethodTransfer = "transfer"
	MethodOnline   = "online"
)

// Admin order listing tabs
const (
	TabNew        = "new"
	TabToValidate = "to_validate"
	TabFailed     = "failed"
	TabDone       = "done"

	AdminPageSize = 10
)

// Order is a purchase attempt of a single Video by a User.
type Order struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	VideoID   string    `json:"videoId" db:"video_id"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`

	Video   *catalog.Video `json:"video,omitempty" db:"-"`
	Payment *Payment       `json:"payment,omitempty" db:"-"`
}

func (o Order) IsPending() bool {
	return o.Status == StatusPending
}

type Payment struct {
	ID         string      `json:"id" db:"id"`
	OrderID    string      `json:"orderId" db:"order_id"`
	Method     string      `json:"method" db:"method"`
	Status     string      `json:"status" db:"status"`
	ReceiptURL null.String `json:"receiptUrl" db:"receipt_url"`
	Amount     float64     `json:"amount" db:"amount"`
	PaidAt     null.Time   `json:"paidAt" db:"paid_at"`
	CreatedAt  time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time   `json:"-" db:"updated_at"`
}

// LibraryEntry grants a User permanent access to a Video.
type LibraryEntry struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	VideoID   string    `json:"videoId" db:"video_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	Video *catalog.Video `json:"video,omitempty" db:"-"`
}

// AdminOrderItem is a flattened Order row of the back-office listing.
type AdminOrderItem struct {
	ID            string      `json:"id" db:"id"`
	CustomerName  string      `json:"customerName" db:"customer_name"`
	Date          time.Time   `json:"date" db:"created_at"`
	Status        string      `json:"status" db:"status"`
	Amount        float64     `json:"amount" db:"amount"`
	CourseTitle   string      `json:"courseTitle" db:"course_title"`
	PaymentMethod null.String `json:"paymentMethod" db:"payment_method"`
	PaymentStatus null.String `json:"paymentStatus" db:"payment_status"`
	ReceiptURL    null.String `json:"receiptUrl" db:"receipt_url"`
}

type AdminOrderPage struct {
	Items      []AdminOrderItem `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	Total      int              `json:"total"`
	TotalPages int              `json:"totalPages"`
}

type NewOrder struct {
	VideoID string `json:"videoId" validate:"required"`
}

func (no *NewOrder) Validate(validate *validator.Validate) error {
	no.VideoID = core.CleanString(no.VideoID)
	return validate.Struct(no)
}

// CheckoutSession is what a PaymentGateway needs to charge an Order.
type CheckoutSession struct {
	OrderID    string
	Title      string
	Amount     float64
	Email      string
	SuccessURL string
	CancelURL  string
}
