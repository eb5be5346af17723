package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/order"
)

const (
	orderColumns   = `id, user_id, video_id, status, created_at, updated_at`
	paymentColumns = `id, order_id, method, status, receipt_url, amount, paid_at, created_at, updated_at`
	libraryColumns = `id, user_id, video_id, created_at`

	orderSelect = `SELECT
		o.id, o.user_id, o.video_id, o.status, o.created_at, o.updated_at,
		pm.id AS pmt_id, pm.method AS pmt_method, pm.status AS pmt_status, pm.receipt_url AS pmt_receipt_url,
		pm.amount AS pmt_amount, pm.paid_at AS pmt_paid_at, pm.created_at AS pmt_created_at, pm.updated_at AS pmt_updated_at
		FROM orders o
		LEFT JOIN payments pm ON pm.order_id = o.id`

	adminOrderSelect = `SELECT
		o.id, COALESCE(NULLIF(u.name, ''), u.email) AS customer_name, o.created_at, o.status,
		COALESCE(pm.amount, v.price) AS amount, v.title AS course_title,
		pm.method AS payment_method, pm.status AS payment_status, pm.receipt_url
		FROM orders o
		JOIN users u ON u.id = o.user_id
		JOIN videos v ON v.id = o.video_id
		LEFT JOIN payments pm ON pm.order_id = o.id`
)

// adminTabConditions filters the admin order listing.
var adminTabConditions = map[string]string{
	order.TabNew:        `o.status = 'pending'`,
	order.TabToValidate: `o.status = 'pending' AND pm.method = 'transfer' AND pm.status = 'pending'`,
	order.TabFailed:     `(o.status IN ('failed', 'cancelled') OR pm.status = 'failed')`,
	order.TabDone:       `(o.status = 'paid' OR pm.status = 'paid')`,
}

type (
	orderRepository struct {
		repository
	}

	orderRow struct {
		order.Order
		PmtID         null.String  `db:"pmt_id"`
		PmtMethod     null.String  `db:"pmt_method"`
		PmtStatus     null.String  `db:"pmt_status"`
		PmtReceiptURL null.String  `db:"pmt_receipt_url"`
		PmtAmount     null.Float64 `db:"pmt_amount"`
		PmtPaidAt     null.Time    `db:"pmt_paid_at"`
		PmtCreatedAt  null.Time    `db:"pmt_created_at"`
		PmtUpdatedAt  null.Time    `db:"pmt_updated_at"`
	}
)

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(exec core.DBExecutor) *orderRepository {
	return &orderRepository{repository{exec: exec}}
}

func (row orderRow) order() order.Order {
	o := row.Order
	if row.PmtID.Valid {
		o.Payment = &order.Payment{
			ID:         row.PmtID.String,
			OrderID:    o.ID,
			Method:     row.PmtMethod.String,
			Status:     row.PmtStatus.String,
			ReceiptURL: row.PmtReceiptURL,
			Amount:     row.PmtAmount.Float64,
			PaidAt:     row.PmtPaidAt,
			CreatedAt:  row.PmtCreatedAt.Time,
			UpdatedAt:  row.PmtUpdatedAt.Time,
		}
	}
	return o
}

func (repo orderRepository) CreateOrder(ctx context.Context, o order.Order, exec ...core.DBExecutor) (order.Order, error) {
	q := `INSERT INTO orders (` + orderColumns + `) VALUES (:id, :user_id, :video_id, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, o); err != nil {
		return order.Order{}, errors.Wrap(err, "inserting order")
	}
	return o, nil
}

func (repo orderRepository) GetOrderByID(ctx context.Context, id string, exec ...core.DBExecutor) (order.Order, error) {
	if !isUUID(id) {
		return order.Order{}, order.ErrNotFound
	}
	var row orderRow
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, orderSelect+` WHERE o.id = $1`, id); err != nil {
		return order.Order{}, trapNoRowsErr(err, order.ErrNotFound, "finding order by ID")
	}
	return row.order(), nil
}

func (repo orderRepository) QueryUserOrders(ctx context.Context, userID string, exec ...core.DBExecutor) ([]order.Order, error) {
	var rows []orderRow
	q := orderSelect + ` WHERE o.user_id = $1 ORDER BY o.created_at DESC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying user orders")
	}
	orders := make([]order.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.order())
	}
	return orders, nil
}

func (repo orderRepository) UpdateOrderStatus(ctx context.Context, id, status string, updatedAt time.Time, exec ...core.DBExecutor) error {
	q := `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, q, id, status, updatedAt.UTC())
	if err != nil {
		return errors.Wrap(err, "updating order status")
	}
	return checkAffected(res, order.ErrNotFound, "updating order status")
}

func (repo orderRepository) QueryAdminOrders(ctx context.Context, tab string, pg core.Pagination, exec ...core.DBExecutor) ([]order.AdminOrderItem, int, error) {
	cond, ok := adminTabConditions[tab]
	if !ok {
		cond = adminTabConditions[order.TabNew]
	}
	exe := repo.getExec(exec)

	var total int
	countQ := `SELECT COUNT(*) FROM orders o LEFT JOIN payments pm ON pm.order_id = o.id WHERE ` + cond
	if err := sqlx.GetContext(ctx, exe, &total, countQ); err != nil {
		return nil, 0, errors.Wrap(err, "counting admin orders")
	}

	items := make([]order.AdminOrderItem, 0)
	q := adminOrderSelect + ` WHERE ` + cond + ` ORDER BY o.created_at DESC LIMIT $1 OFFSET $2`
	if err := sqlx.SelectContext(ctx, exe, &items, q, pg.PageSize, pg.Offset()); err != nil {
		return nil, 0, errors.Wrap(err, "querying admin orders")
	}
	return items, total, nil
}

func (repo orderRepository) UpsertPayment(ctx context.Context, p order.Payment, exec ...core.DBExecutor) (order.Payment, error) {
	q, args, err := sqlx.Named(`INSERT INTO payments (`+paymentColumns+`)
		VALUES (:id, :order_id, :method, :status, :receipt_url, :amount, :paid_at, :created_at, :updated_at)
		ON CONFLICT (order_id) DO UPDATE SET
		method = EXCLUDED.method, status = EXCLUDED.status, receipt_url = EXCLUDED.receipt_url,
		amount = EXCLUDED.amount, paid_at = EXCLUDED.paid_at, updated_at = EXCLUDED.updated_at
		RETURNING `+paymentColumns, p)
	if err != nil {
		return order.Payment{}, errors.Wrap(err, "binding payment")
	}

	var saved order.Payment
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &saved, sqlx.Rebind(sqlx.DOLLAR, q), args...); err != nil {
		return order.Payment{}, errors.Wrap(err, "upserting payment")
	}
	return saved, nil
}

func (repo orderRepository) GetPaymentByOrderID(ctx context.Context, orderID string, exec ...core.DBExecutor) (order.Payment, error) {
	if !isUUID(orderID) {
		return order.Payment{}, order.ErrPaymentNotFound
	}
	var p order.Payment
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &p, q, orderID); err != nil {
		return order.Payment{}, trapNoRowsErr(err, order.ErrPaymentNotFound, "finding payment")
	}
	return p, nil
}

func (repo orderRepository) UpsertLibraryEntry(ctx context.Context, e order.LibraryEntry, exec ...core.DBExecutor) error {
	q := `INSERT INTO library (` + libraryColumns + `) VALUES (:id, :user_id, :video_id, :created_at)
		ON CONFLICT (user_id, video_id) DO NOTHING`
	_, err := sqlx.NamedExecContext(ctx, repo.getExec(exec), q, e)
	return errors.Wrap(err, "upserting library entry")
}

func (repo orderRepository) LibraryEntryExists(ctx context.Context, userID, videoID string, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(userID) || !isUUID(videoID) {
		return false, nil
	}
	q := `SELECT EXISTS (SELECT 1 FROM library WHERE user_id = $1 AND video_id = $2)`
	return repo.exists(ctx, repo.getExec(exec), "checking library entry", q, userID, videoID)
}

func (repo orderRepository) QueryLibrary(ctx context.Context, userID string, exec ...core.DBExecutor) ([]order.LibraryEntry, error) {
	entries := make([]order.LibraryEntry, 0)
	q := `SELECT ` + libraryColumns + ` FROM library WHERE user_id = $1 ORDER BY created_at DESC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &entries, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying library")
	}
	return entries, nil
}

func (repo orderRepository) PaidOrderExists(ctx context.Context, userID, videoID string, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(userID) || !isUUID(videoID) {
		return false, nil
	}
	q := `SELECT EXISTS (SELECT 1 FROM orders WHERE user_id = $1 AND video_id = $2 AND status = 'paid')`
	return repo.exists(ctx, repo.getExec(exec), "checking paid order", q, userID, videoID)
}
