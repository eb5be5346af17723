package order

import (
	"context"
	"io"
	"net/mail"
	"strings"
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
	ErrNotFound        = core.NewNotFoundError("order not found")
	ErrPaymentNotFound = core.NewNotFoundError("payment not found")
	ErrNotOwner        = core.NewPermissionError("this order belongs to another user")
	ErrNotPending      = core.NewConflictError("this order is no longer pending")
	ErrClosed          = core.NewConflictError("this order has failed or was cancelled")
	ErrGatewayDisabled = core.NewPermissionError("online payment is not available")
)

type (
	Repository interface {
		CreateOrder(ctx context.Context, o Order, exec ...core.DBExecutor) (Order, error)
		// GetOrderByID loads Order.Payment when one exists.
		GetOrderByID(ctx context.Context, id string, exec ...core.DBExecutor) (Order, error)
		// QueryUserOrders returns the orders of a user, newest first.
		QueryUserOrders(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Order, error)
		UpdateOrderStatus(ctx context.Context, id, status string, updatedAt time.Time, exec ...core.DBExecutor) error
		// QueryAdminOrders returns one page of the tab's orders, newest first, and the tab's total count.
		QueryAdminOrders(ctx context.Context, tab string, pg core.Pagination, exec ...core.DBExecutor) ([]AdminOrderItem, int, error)

		// UpsertPayment creates the Payment of an order or overwrites it.
		UpsertPayment(ctx context.Context, p Payment, exec ...core.DBExecutor) (Payment, error)
		GetPaymentByOrderID(ctx context.Context, orderID string, exec ...core.DBExecutor) (Payment, error)

		// UpsertLibraryEntry is a no-op when the (user, video) pair already exists.
		UpsertLibraryEntry(ctx context.Context, e LibraryEntry, exec ...core.DBExecutor) error
		LibraryEntryExists(ctx context.Context, userID, videoID string, exec ...core.DBExecutor) (bool, error)
		// QueryLibrary returns the entries of a user, newest first.
		QueryLibrary(ctx context.Context, userID string, exec ...core.DBExecutor) ([]LibraryEntry, error)
		PaidOrderExists(ctx context.Context, userID, videoID string, exec ...core.DBExecutor) (bool, error)
	}

	VideoFinder interface {
		GetVideo(ctx context.Context, id string) (catalog.Video, error)
	}

	UserFinder interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// ReceiptSaver stores a transfer receipt and returns its public URL.
	ReceiptSaver interface {
		SaveReceipt(filename string, r io.Reader) (string, error)
		RemoveReceipt(url string) error
	}

	PaymentGateway interface {
		// NewCheckoutSession returns the URL the customer must be redirected to.
		NewCheckoutSession(ctx context.Context, cs CheckoutSession) (string, error)
		// ParseCompletedCheckout verifies a gateway notification. completed is false
		// for events other than a successfully paid checkout.
		ParseCompletedCheckout(payload []byte, signature string) (orderID string, completed bool, err error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		videos   VideoFinder
		users    UserFinder
		receipts ReceiptSaver
		gateway  PaymentGateway // nil when online payment is not configured
		mailSvc  core.EmailService
		logger   core.Logger
		now      func() time.Time
	}
)

func NewService(
	repo Repository,
	tx core.Transactor,
	videos VideoFinder,
	users UserFinder,
	receipts ReceiptSaver,
	gateway PaymentGateway,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		videos:   videos,
		users:    users,
		receipts: receipts,
		gateway:  gateway,
		mailSvc:  mailSvc,
		logger:   logger,
		now:      time.Now,
	}
}

// getOwned returns the Order identified by id if requester may act on it as a customer.
func (svc *Service) getOwned(ctx context.Context, requester user.User, id string) (Order, error) {
	o, err := svc.repo.GetOrderByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != requester.ID {
		return Order{}, ErrNotOwner
	}
	return o, nil
}

func (svc *Service) withVideo(ctx context.Context, o Order) (Order, error) {
	vid, err := svc.videos.GetVideo(ctx, o.VideoID)
	if err != nil {
		return Order{}, errors.Wrap(err, "finding order video")
	}
	o.Video = &vid
	return o, nil
}

// Create inserts a pending Order for the current price of the Video.
func (svc *Service) Create(ctx context.Context, requester user.User, no NewOrder) (Order, error) {
	vid, err := svc.videos.GetVideo(ctx, no.VideoID)
	if err != nil {
		return Order{}, err
	}
	now := svc.now().UTC()
	o, err := svc.repo.CreateOrder(ctx, Order{
		ID:        uuid.New().String(),
		UserID:    requester.ID,
		VideoID:   vid.ID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Order{}, errors.Wrap(err, "creating order")
	}
	o.Video = &vid
	return o, nil
}

// Get returns an Order with its Video and Payment. Only the owner or an admin may read it.
func (svc *Service) Get(ctx context.Context, requester user.User, id string) (Order, error) {
	o, err := svc.repo.GetOrderByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != requester.ID && !requester.IsAdmin() {
		return Order{}, ErrNotOwner
	}
	return svc.withVideo(ctx, o)
}

func (svc *Service) UserOrders(ctx context.Context, requester user.User) ([]Order, error) {
	orders, err := svc.repo.QueryUserOrders(ctx, requester.ID)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i], err = svc.withVideo(ctx, orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// markPaid marks the Order and its Payment as paid and grants the library entry.
// o.Video must be loaded.
func (svc *Service) markPaid(ctx context.Context, o *Order, method string, now time.Time, exec core.DBExecutor) error {
	if err := svc.repo.UpdateOrderStatus(ctx, o.ID, StatusPaid, now, exec); err != nil {
		return errors.Wrap(err, "updating order status")
	}

	pmt := Payment{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		Method:    method,
		Amount:    o.Video.Price,
		CreatedAt: now,
	}
	if o.Payment != nil {
		pmt = *o.Payment
	}
	pmt.Status = StatusPaid
	pmt.PaidAt = null.TimeFrom(now)
	pmt.UpdatedAt = now
	p, err := svc.repo.UpsertPayment(ctx, pmt, exec)
	if err != nil {
		return errors.Wrap(err, "saving payment")
	}

	err = svc.repo.UpsertLibraryEntry(ctx, LibraryEntry{
		ID:        uuid.New().String(),
		UserID:    o.UserID,
		VideoID:   o.VideoID,
		CreatedAt: now,
	}, exec)
	if err != nil {
		return errors.Wrap(err, "granting library access")
	}

	o.Status = StatusPaid
	o.UpdatedAt = now
	o.Payment = &p
	return nil
}

// completePayment pays an existing Order in a single transaction and notifies the customer.
func (svc *Service) completePayment(ctx context.Context, o Order, method string) (Order, error) {
	o, err := svc.withVideo(ctx, o)
	if err != nil {
		return Order{}, err
	}
	now := svc.now().UTC()
	paid := o
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		return svc.markPaid(ctx, &paid, method, now, exec)
	})
	if err != nil {
		return Order{}, err
	}
	svc.notifyPaid(ctx, paid)
	return paid, nil
}

func (svc *Service) notifyPaid(ctx context.Context, o Order) {
	usr, err := svc.users.GetByID(ctx, o.UserID)
	if err != nil {
		svc.logger.Error("order.notifyPaid", errors.Wrap(err, "finding customer"))
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Your order is confirmed",
		TemplateName: "order_paid",
		TemplateData: map[string]interface{}{
			"Name":       usr.Name,
			"VideoTitle": o.Video.Title,
			"Amount":     o.Payment.Amount,
		},
	})
}

// PayOnline instantly pays a pending Order. Paying an already paid Order is a no-op.
func (svc *Service) PayOnline(ctx context.Context, requester user.User, id string) (Order, error) {
	o, err := svc.getOwned(ctx, requester, id)
	if err != nil {
		return Order{}, err
	}
	switch o.Status {
	case StatusPaid:
		err = svc.repo.UpsertLibraryEntry(ctx, LibraryEntry{
			ID:        uuid.New().String(),
			UserID:    o.UserID,
			VideoID:   o.VideoID,
			CreatedAt: svc.now().UTC(),
		})
		if err != nil {
			return Order{}, errors.Wrap(err, "granting library access")
		}
		return svc.withVideo(ctx, o)
	case StatusPending:
		return svc.completePayment(ctx, o, MethodOnline)
	default:
		return Order{}, ErrClosed
	}
}

// PayTransfer stores the receipt of a bank transfer and records a pending transfer Payment.
// The Order stays pending until an admin validates it.
func (svc *Service) PayTransfer(ctx context.Context, requester user.User, id, filename string, receipt io.Reader) (Payment, error) {
	o, err := svc.getOwned(ctx, requester, id)
	if err != nil {
		return Payment{}, err
	}
	if !o.IsPending() {
		return Payment{}, ErrNotPending
	}
	if o, err = svc.withVideo(ctx, o); err != nil {
		return Payment{}, err
	}

	url, err := svc.receipts.SaveReceipt(filename, receipt)
	if err != nil {
		return Payment{}, errors.Wrap(err, "saving receipt")
	}

	now := svc.now().UTC()
	pmt := Payment{ID: uuid.New().String(), OrderID: o.ID, CreatedAt: now}
	if o.Payment != nil {
		pmt = *o.Payment
	}
	pmt.Method = MethodTransfer
	pmt.Status = StatusPending
	pmt.ReceiptURL = null.StringFrom(url)
	pmt.Amount = o.Video.Price
	pmt.PaidAt = null.Time{}
	pmt.UpdatedAt = now
	pmt, err = svc.repo.UpsertPayment(ctx, pmt)
	if err != nil {
		if rmErr := svc.receipts.RemoveReceipt(url); rmErr != nil {
			svc.logger.Error("order.PayTransfer", errors.Wrap(rmErr, "removing orphan receipt"))
		}
		return Payment{}, errors.Wrap(err, "saving payment")
	}
	return pmt, nil
}

// Validate is the admin confirmation of a payment: the Order becomes paid whatever its state.
func (svc *Service) Validate(ctx context.Context, id string) (Order, error) {
	o, err := svc.repo.GetOrderByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	return svc.completePayment(ctx, o, MethodTransfer)
}

// Reject marks a pending Order and its Payment as failed.
func (svc *Service) Reject(ctx context.Context, id string) (Order, error) {
	o, err := svc.repo.GetOrderByID(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !o.IsPending() {
		return Order{}, ErrNotPending
	}
	now := svc.now().UTC()

	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.UpdateOrderStatus(ctx, o.ID, StatusFailed, now, exec); err != nil {
			return errors.Wrap(err, "updating order status")
		}
		if o.Payment == nil {
			return nil
		}
		pmt := *o.Payment
		pmt.Status = StatusFailed
		pmt.UpdatedAt = now
		p, err := svc.repo.UpsertPayment(ctx, pmt, exec)
		if err != nil {
			return errors.Wrap(err, "saving payment")
		}
		o.Payment = &p
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	o.Status = StatusFailed
	o.UpdatedAt = now
	return o, nil
}

// Cancel lets the owner abandon a pending Order.
func (svc *Service) Cancel(ctx context.Context, requester user.User, id string) (Order, error) {
	o, err := svc.getOwned(ctx, requester, id)
	if err != nil {
		return Order{}, err
	}
	if !o.IsPending() {
		return Order{}, ErrNotPending
	}
	now := svc.now().UTC()
	if err = svc.repo.UpdateOrderStatus(ctx, o.ID, StatusCancelled, now); err != nil {
		return Order{}, errors.Wrap(err, "updating order status")
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return o, nil
}

// Purchase creates an already paid Order for the Video and grants library access.
func (svc *Service) Purchase(ctx context.Context, requester user.User, videoID string) (Order, error) {
	vid, err := svc.videos.GetVideo(ctx, videoID)
	if err != nil {
		return Order{}, err
	}
	now := svc.now().UTC()
	o := Order{
		ID:        uuid.New().String(),
		UserID:    requester.ID,
		VideoID:   vid.ID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Video:     &vid,
	}
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.CreateOrder(ctx, o, exec); err != nil {
			return errors.Wrap(err, "creating order")
		}
		return svc.markPaid(ctx, &o, MethodOnline, now, exec)
	})
	if err != nil {
		return Order{}, err
	}
	svc.notifyPaid(ctx, o)
	return o, nil
}

// Checkout opens a gateway checkout session for a pending Order and returns its URL.
func (svc *Service) Checkout(ctx context.Context, requester user.User, id, successURL, cancelURL string) (string, error) {
	if svc.gateway == nil {
		return "", ErrGatewayDisabled
	}
	o, err := svc.getOwned(ctx, requester, id)
	if err != nil {
		return "", err
	}
	if !o.IsPending() {
		return "", ErrNotPending
	}
	if o, err = svc.withVideo(ctx, o); err != nil {
		return "", err
	}
	url, err := svc.gateway.NewCheckoutSession(ctx, CheckoutSession{
		OrderID:    o.ID,
		Title:      o.Video.Title,
		Amount:     o.Video.Price,
		Email:      requester.Email,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	return url, errors.Wrap(err, "creating checkout session")
}

// CompleteCheckout handles a gateway notification. Unrelated events and already paid orders are ignored.
func (svc *Service) CompleteCheckout(ctx context.Context, payload []byte, signature string) error {
	if svc.gateway == nil {
		return ErrGatewayDisabled
	}
	orderID, completed, err := svc.gateway.ParseCompletedCheckout(payload, signature)
	if err != nil {
		return core.NewValidationError(err)
	}
	if !completed {
		return nil
	}
	o, err := svc.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status == StatusPaid {
		return nil
	}
	_, err = svc.completePayment(ctx, o, MethodOnline)
	return err
}

// InLibrary reports whether the user owns a library entry for the video.
func (svc *Service) InLibrary(ctx context.Context, userID, videoID string) (bool, error) {
	return svc.repo.LibraryEntryExists(ctx, userID, videoID)
}

// HasAccess is true when the user owns a library entry or a paid order for the video.
func (svc *Service) HasAccess(ctx context.Context, userID, videoID string) (bool, error) {
	ok, err := svc.repo.LibraryEntryExists(ctx, userID, videoID)
	if err != nil || ok {
		return ok, err
	}
	return svc.repo.PaidOrderExists(ctx, userID, videoID)
}

func (svc *Service) Library(ctx context.Context, requester user.User) ([]LibraryEntry, error) {
	entries, err := svc.repo.QueryLibrary(ctx, requester.ID)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		vid, err := svc.videos.GetVideo(ctx, e.VideoID)
		if err != nil {
			return nil, errors.Wrap(err, "finding library video")
		}
		entries[i].Video = &vid
	}
	return entries, nil
}

// AdminOrders lists orders of a back-office tab. Unknown tabs fall back to TabNew.
func (svc *Service) AdminOrders(ctx context.Context, tab string, page int) (AdminOrderPage, error) {
	tab = strings.ToLower(strings.TrimSpace(tab))
	switch tab {
	case TabNew, TabToValidate, TabFailed, TabDone:
	default:
		tab = TabNew
	}
	if page < 1 {
		page = 1
	}
	pg := core.Pagination{Page: page, PageSize: AdminPageSize}
	items, total, err := svc.repo.QueryAdminOrders(ctx, tab, pg)
	if err != nil {
		return AdminOrderPage{}, err
	}
	if items == nil {
		items = []AdminOrderItem{}
	}
	return AdminOrderPage{
		Items:      items,
		Page:       page,
		PageSize:   AdminPageSize,
		Total:      total,
		TotalPages: pg.TotalPages(total),
	}, nil
}
