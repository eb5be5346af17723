package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/order"
)

type orderRepository struct {
	db *DB
}

var _ order.Repository = (*orderRepository)(nil) // interface compliance check

func NewOrderRepository(db *DB) *orderRepository {
	return &orderRepository{db: db}
}

// withPayment must be called with the read lock held.
func (repo *orderRepository) withPayment(o order.Order) order.Order {
	if p, ok := repo.db.data.payments[o.ID]; ok {
		o.Payment = &p
	}
	return o
}

func (repo *orderRepository) CreateOrder(ctx context.Context, o order.Order, exec ...core.DBExecutor) (order.Order, error) {
	defer repo.db.lockWrite(exec)()

	o.Video, o.Payment = nil, nil
	repo.db.data.orders[o.ID] = o
	return o, nil
}

func (repo *orderRepository) GetOrderByID(ctx context.Context, id string, exec ...core.DBExecutor) (order.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if o, ok := repo.db.data.orders[id]; ok {
		return repo.withPayment(o), nil
	}
	return order.Order{}, order.ErrNotFound
}

func (repo *orderRepository) QueryUserOrders(ctx context.Context, userID string, exec ...core.DBExecutor) ([]order.Order, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	orders := make([]order.Order, 0)
	for _, o := range repo.db.data.orders {
		if o.UserID == userID {
			orders = append(orders, repo.withPayment(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (repo *orderRepository) UpdateOrderStatus(ctx context.Context, id, status string, updatedAt time.Time, exec ...core.DBExecutor) error {
	defer repo.db.lockWrite(exec)()

	o, ok := repo.db.data.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = updatedAt
	repo.db.data.orders[id] = o
	return nil
}

func inAdminTab(tab string, o order.Order, p *order.Payment) bool {
	switch tab {
	case order.TabToValidate:
		return o.Status == order.StatusPending && p != nil && p.Method == order.MethodTransfer && p.Status == order.StatusPending
	case order.TabFailed:
		return o.Status == order.StatusFailed || o.Status == order.StatusCancelled || (p != nil && p.Status == order.StatusFailed)
	case order.TabDone:
		return o.Status == order.StatusPaid || (p != nil && p.Status == order.StatusPaid)
	default:
		return o.Status == order.StatusPending
	}
}

func (repo *orderRepository) QueryAdminOrders(ctx context.Context, tab string, pg core.Pagination, exec ...core.DBExecutor) ([]order.AdminOrderItem, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var matching []order.Order
	for _, o := range repo.db.data.orders {
		o = repo.withPayment(o)
		if inAdminTab(tab, o, o.Payment) {
			matching = append(matching, o)
		}
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].CreatedAt.After(matching[j].CreatedAt) })

	total := len(matching)
	start := pg.Offset()
	if start > total {
		start = total
	}
	end := start + pg.PageSize
	if end > total {
		end = total
	}

	items := make([]order.AdminOrderItem, 0, end-start)
	for _, o := range matching[start:end] {
		item := order.AdminOrderItem{ID: o.ID, Date: o.CreatedAt, Status: o.Status}
		if usr, ok := repo.db.data.users[o.UserID]; ok {
			item.CustomerName = usr.Name
			if item.CustomerName == "" {
				item.CustomerName = usr.Email
			}
		}
		if vid, ok := repo.db.data.videos[o.VideoID]; ok {
			item.CourseTitle = vid.Title
			item.Amount = vid.Price
		}
		if p := o.Payment; p != nil {
			item.Amount = p.Amount
			item.PaymentMethod = null.StringFrom(p.Method)
			item.PaymentStatus = null.StringFrom(p.Status)
			item.ReceiptURL = p.ReceiptURL
		}
		items = append(items, item)
	}
	return items, total, nil
}

func (repo *orderRepository) UpsertPayment(ctx context.Context, p order.Payment, exec ...core.DBExecutor) (order.Payment, error) {
	defer repo.db.lockWrite(exec)()

	if existing, ok := repo.db.data.payments[p.OrderID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	}
	repo.db.data.payments[p.OrderID] = p
	return p, nil
}

func (repo *orderRepository) GetPaymentByOrderID(ctx context.Context, orderID string, exec ...core.DBExecutor) (order.Payment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.data.payments[orderID]; ok {
		return p, nil
	}
	return order.Payment{}, order.ErrPaymentNotFound
}

func (repo *orderRepository) UpsertLibraryEntry(ctx context.Context, e order.LibraryEntry, exec ...core.DBExecutor) error {
	defer repo.db.lockWrite(exec)()

	key := pairKey(e.UserID, e.VideoID)
	if _, ok := repo.db.data.library[key]; !ok {
		e.Video = nil
		repo.db.data.library[key] = e
	}
	return nil
}

func (repo *orderRepository) LibraryEntryExists(ctx context.Context, userID, videoID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	_, ok := repo.db.data.library[pairKey(userID, videoID)]
	return ok, nil
}

func (repo *orderRepository) QueryLibrary(ctx context.Context, userID string, exec ...core.DBExecutor) ([]order.LibraryEntry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]order.LibraryEntry, 0)
	for _, e := range repo.db.data.library {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.After(entries[j].CreatedAt) })
	return entries, nil
}

func (repo *orderRepository) PaidOrderExists(ctx context.Context, userID, videoID string, exec ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, o := range repo.db.data.orders {
		if o.UserID == userID && o.VideoID == videoID && o.Status == order.StatusPaid {
			return true, nil
		}
	}
	return false, nil
}
