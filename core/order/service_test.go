package order_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/catalog"
	"github.com/kidoparadise/kido/core/order"
	"github.com/kidoparadise/kido/core/user"
	emailsvc "github.com/kidoparadise/kido/services/email"
	inmemdb "github.com/kidoparadise/kido/storage/database/inmem"
	filestore "github.com/kidoparadise/kido/storage/files"
	"github.com/kidoparadise/kido/tests"
)

type fakeGateway struct {
	sessions  []order.CheckoutSession
	orderID   string
	completed bool
	err       error
}

func (g *fakeGateway) NewCheckoutSession(ctx context.Context, cs order.CheckoutSession) (string, error) {
	g.sessions = append(g.sessions, cs)
	return "https://checkout.test/" + cs.OrderID, nil
}

func (g *fakeGateway) ParseCompletedCheckout(payload []byte, signature string) (string, bool, error) {
	return g.orderID, g.completed, g.err
}

// brokenLibrary fails every library grant.
type brokenLibrary struct {
	order.Repository
}

func (brokenLibrary) UpsertLibraryEntry(ctx context.Context, e order.LibraryEntry, exec ...core.DBExecutor) error {
	return errors.New("disk full")
}

// brokenPayments fails every payment write.
type brokenPayments struct {
	order.Repository
}

func (brokenPayments) UpsertPayment(ctx context.Context, p order.Payment, exec ...core.DBExecutor) (order.Payment, error) {
	return order.Payment{}, errors.New("connection reset")
}

type fixture struct {
	repo    order.Repository
	svc     *order.Service
	fs      afero.Fs
	mailSvc *emailsvc.ConsoleServiceMock
	usr     user.User
	video   catalog.Video
}

func setup(t *testing.T, gateway order.PaymentGateway, wrap ...func(order.Repository) order.Repository) fixture {
	conf := testutil.NewConfig()
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	catalogRepo := inmemdb.NewCatalogRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NopLogger{})

	var repo order.Repository = inmemdb.NewOrderRepository(db)
	for _, fn := range wrap {
		repo = fn(repo)
	}

	cat := testutil.CreateCategory(t, catalogRepo, "Sommeil", "sommeil")
	pro := testutil.CreateProfessional(t, catalogRepo, "Dr Awa", "Pediatrics")
	f := fixture{
		repo:    repo,
		fs:      afero.NewMemMapFs(),
		mailSvc: mailSvc,
		usr:     testutil.CreateUser(t, usrRepo, "Marie", "marie@test.cd", "", user.RoleUser),
		video:   testutil.CreateVideo(t, catalogRepo, "Bedtime routines", "bedtime-routines", 29.99, cat, pro, ""),
	}
	f.svc = order.NewService(
		repo,
		inmemdb.NewTransactor(db),
		catalog.NewService(catalogRepo),
		user.NewService(usrRepo, mailSvc),
		filestore.New(f.fs),
		gateway,
		mailSvc,
		testutil.NopLogger{},
	)
	return f
}

func TestService_Checkout(t *testing.T) {
	ctx := context.Background()

	t.Run("gateway disabled", func(t *testing.T) {
		f := setup(t, nil)
		o, err := f.svc.Create(ctx, f.usr, order.NewOrder{VideoID: f.video.ID})
		require.NoError(t, err)
		_, err = f.svc.Checkout(ctx, f.usr, o.ID, "ok", "ko")
		assert.Equal(t, order.ErrGatewayDisabled, err)
		assert.Equal(t, order.ErrGatewayDisabled, f.svc.CompleteCheckout(ctx, []byte("{}"), "sig"))
	})

	gw := &fakeGateway{}
	f := setup(t, gw)
	o, err := f.svc.Create(ctx, f.usr, order.NewOrder{VideoID: f.video.ID})
	require.NoError(t, err)

	t.Run("not the owner", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, user.User{ID: "lol"}, o.ID, "ok", "ko")
		assert.Equal(t, order.ErrNotOwner, err)
	})

	t.Run("session", func(t *testing.T) {
		url, err := f.svc.Checkout(ctx, f.usr, o.ID, "https://front.test/ok", "https://front.test/ko")
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.test/"+o.ID, url)
		require.Len(t, gw.sessions, 1)
		assert.Equal(t, order.CheckoutSession{
			OrderID:    o.ID,
			Title:      f.video.Title,
			Amount:     f.video.Price,
			Email:      f.usr.Email,
			SuccessURL: "https://front.test/ok",
			CancelURL:  "https://front.test/ko",
		}, gw.sessions[0])
	})

	t.Run("bad signature", func(t *testing.T) {
		gw.err = errors.New("signature mismatch")
		err := f.svc.CompleteCheckout(ctx, []byte("{}"), "lol")
		gw.err = nil
		_, ok := errors.Cause(err).(*core.ValidationError)
		assert.True(t, ok, "%T", err)
	})

	t.Run("unrelated event", func(t *testing.T) {
		gw.orderID, gw.completed = o.ID, false
		require.NoError(t, f.svc.CompleteCheckout(ctx, []byte("{}"), "sig"))
		got, err := f.repo.GetOrderByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPending, got.Status)
	})

	t.Run("completed, then redelivered", func(t *testing.T) {
		f.mailSvc.Reset()
		gw.orderID, gw.completed = o.ID, true
		for i := 0; i < 2; i++ {
			require.NoError(t, f.svc.CompleteCheckout(ctx, []byte("{}"), "sig"))
		}
		got, err := f.repo.GetOrderByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPaid, got.Status)
		require.NotNil(t, got.Payment)
		assert.Equal(t, order.MethodOnline, got.Payment.Method)
		assert.Equal(t, f.video.Price, got.Payment.Amount)
		assert.Len(t, f.mailSvc.SentMessages(), 1)

		ok, err := f.svc.InLibrary(ctx, f.usr.ID, f.video.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("paid orders cannot be checked out", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, f.usr, o.ID, "ok", "ko")
		assert.Equal(t, order.ErrNotPending, err)
	})

	t.Run("unknown order", func(t *testing.T) {
		gw.orderID = "lol"
		assert.Equal(t, order.ErrNotFound, f.svc.CompleteCheckout(ctx, []byte("{}"), "sig"))
	})
}

func TestService_paymentIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil, func(repo order.Repository) order.Repository { return brokenLibrary{repo} })

	o, err := f.svc.Create(ctx, f.usr, order.NewOrder{VideoID: f.video.ID})
	require.NoError(t, err)

	_, err = f.svc.PayOnline(ctx, f.usr, o.ID)
	require.Error(t, err)

	got, err := f.repo.GetOrderByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Nil(t, got.Payment)
	assert.Empty(t, f.mailSvc.SentMessages())

	_, err = f.svc.Purchase(ctx, f.usr, f.video.ID)
	require.Error(t, err)
	orders, err := f.svc.UserOrders(ctx, f.usr)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestService_PayTransfer(t *testing.T) {
	ctx := context.Background()
	receipts := func(f fixture) []os.FileInfo {
		files, _ := afero.ReadDir(f.fs, "uploads/transfers")
		return files
	}

	t.Run("receipt saved", func(t *testing.T) {
		f := setup(t, nil)
		o, err := f.svc.Create(ctx, f.usr, order.NewOrder{VideoID: f.video.ID})
		require.NoError(t, err)

		pmt, err := f.svc.PayTransfer(ctx, f.usr, o.ID, "receipt.png", strings.NewReader("png"))
		require.NoError(t, err)
		assert.Equal(t, order.MethodTransfer, pmt.Method)
		assert.Equal(t, order.StatusPending, pmt.Status)
		assert.Len(t, receipts(f), 1)
	})

	t.Run("receipt removed when the payment is not saved", func(t *testing.T) {
		f := setup(t, nil, func(repo order.Repository) order.Repository { return brokenPayments{repo} })
		o, err := f.svc.Create(ctx, f.usr, order.NewOrder{VideoID: f.video.ID})
		require.NoError(t, err)

		_, err = f.svc.PayTransfer(ctx, f.usr, o.ID, "receipt.png", strings.NewReader("png"))
		require.Error(t, err)
		assert.Empty(t, receipts(f))
	})
}

func TestService_AdminOrders(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	for i := 0; i < order.AdminPageSize+2; i++ {
		_, err := f.svc.Create(ctx, f.usr, order.NewOrder{VideoID: f.video.ID})
		require.NoError(t, err)
	}

	pg, err := f.svc.AdminOrders(ctx, " NEW ", 2)
	require.NoError(t, err)
	assert.Equal(t, order.AdminPageSize+2, pg.Total)
	assert.Equal(t, 2, pg.TotalPages)
	assert.Len(t, pg.Items, 2)

	pg, err = f.svc.AdminOrders(ctx, "lol", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, pg.Page)
	assert.Len(t, pg.Items, order.AdminPageSize)

	pg, err = f.svc.AdminOrders(ctx, order.TabDone, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, pg.Total)
	assert.NotNil(t, pg.Items)
}
