package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/order"
	"github.com/kidoparadise/kido/core/user"
	"github.com/kidoparadise/kido/tests"
)

func (app *testApp) createOrder(t *testing.T, token, videoID string) order.Order {
	rec := app.serve(newAuthRequest(http.MethodPost, "/api/orders", token, marchallObj(t, order.NewOrder{VideoID: videoID})))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp OrderResponse
	unmarchall(t, rec, &resp)
	return resp.Order
}

func (app *testApp) hasAccess(t *testing.T, token, videoID string) bool {
	rec := app.serve(newAuthRequest(http.MethodGet, "/api/access?videoId="+videoID, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp AccessResponse
	unmarchall(t, rec, &resp)
	return resp.HasAccess
}

func Test_orderApi_create(t *testing.T) {
	app := setup(t)
	usr, _ := app.createUsers(t)
	fx := app.createCatalog(t)
	token := app.token(t, usr)

	tests := []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/orders", body: []byte(`{}`), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingTokenBody)},
		{name: "missing video", method: http.MethodPost, path: "/api/orders", body: []byte(`{}`), token: token, wantCode: http.StatusBadRequest, wantData: []byte(`{"videoId":"this field is required"}`)},
		{name: "unknown video", method: http.MethodPost, path: "/api/orders", body: []byte(`{"videoId":"lol"}`), token: token, wantCode: http.StatusNotFound},
		{name: "no orders yet", path: "/api/orders", token: token, wantCode: http.StatusOK, wantData: []byte(`[]`)},
		{name: "empty library", path: "/api/library", token: token, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	}
	runHTTPTests(t, app, tests)

	o := app.createOrder(t, token, fx.video.ID)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, usr.ID, o.UserID)
	require.NotNil(t, o.Video)
	assert.Equal(t, fx.video.Title, o.Video.Title)

	t.Run("owner and admin only", func(t *testing.T) {
		other := testutil.CreateUser(t, app.users, "Other", "other@test.cd", "", user.RoleUser)
		rec := app.serve(newAuthRequest(http.MethodGet, "/api/orders/"+o.ID, app.token(t, other)))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.serve(newAuthRequest(http.MethodGet, "/api/orders/"+o.ID, token))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = app.serve(newAuthRequest(http.MethodGet, "/api/orders", token))
		var orders []order.Order
		unmarchall(t, rec, &orders)
		assert.Len(t, orders, 1)
	})
}

func Test_orderApi_payOnline(t *testing.T) {
	app := setup(t)
	usr, _ := app.createUsers(t)
	fx := app.createCatalog(t)
	token := app.token(t, usr)
	o := app.createOrder(t, token, fx.video.ID)
	path := "/api/orders/" + o.ID + "/pay-online"

	assert.False(t, app.hasAccess(t, token, fx.video.ID))

	app.mailSvc.Reset()
	for i := 1; i <= 2; i++ {
		t.Run(fmt.Sprintf("attempt %d", i), func(t *testing.T) {
			rec := app.serve(newAuthRequest(http.MethodPost, path, token))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var resp OrderResponse
			unmarchall(t, rec, &resp)
			assert.Equal(t, order.StatusPaid, resp.Order.Status)
		})
	}

	// paying twice grants a single library entry and a single email
	entries, err := app.orders.QueryLibrary(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Len(t, app.mailSvc.SentMessages(), 1)
	assert.True(t, app.hasAccess(t, token, fx.video.ID))

	t.Run("anonymous access check", func(t *testing.T) {
		assert.False(t, app.hasAccess(t, "", fx.video.ID))

		rec := app.serve(newRequest(http.MethodGet, "/api/access/"+fx.video.ID))
		assert.JSONEq(t, `{"hasAccess":false,"isLoggedIn":false}`, rec.Body.String())
		rec = app.serve(newAuthRequest(http.MethodGet, "/api/access/"+fx.video.ID, token))
		assert.JSONEq(t, `{"hasAccess":true,"isLoggedIn":true}`, rec.Body.String())
	})

	t.Run("library", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodGet, "/api/library", token))
		var lib []order.LibraryEntry
		unmarchall(t, rec, &lib)
		require.Len(t, lib, 1)
		require.NotNil(t, lib[0].Video)
		assert.Equal(t, fx.video.ID, lib[0].Video.ID)
	})
}

func Test_orderApi_devModeDisabled(t *testing.T) {
	app := setup(t, func(conf *core.Config) { conf.Payment.DevMode = false })
	usr, _ := app.createUsers(t)
	fx := app.createCatalog(t)
	token := app.token(t, usr)
	o := app.createOrder(t, token, fx.video.ID)

	disabled := marchallObj(t, httpErr{Error: "instant payments are disabled"})
	gatewayOff := marchallObj(t, httpErr{Error: order.ErrGatewayDisabled.Message})
	tests := []httpTest{
		{name: "pay-online", method: http.MethodPost, path: "/api/orders/" + o.ID + "/pay-online", token: token, wantCode: http.StatusForbidden, wantData: disabled},
		{name: "pay", method: http.MethodPost, path: "/api/orders/" + o.ID + "/pay", token: token, wantCode: http.StatusForbidden, wantData: disabled},
		{name: "purchase", method: http.MethodPost, path: "/api/purchase", body: marchallObj(t, order.NewOrder{VideoID: fx.video.ID}), token: token, wantCode: http.StatusForbidden, wantData: disabled},
		{name: "checkout without gateway", method: http.MethodPost, path: "/api/orders/" + o.ID + "/checkout", body: []byte(`{}`), token: token, wantCode: http.StatusForbidden, wantData: gatewayOff},
		{name: "webhook without gateway", method: http.MethodPost, path: "/api/webhooks/stripe", body: []byte(`{}`), wantCode: http.StatusForbidden, wantData: gatewayOff},
	}
	runHTTPTests(t, app, tests)
}

func Test_orderApi_purchase(t *testing.T) {
	app := setup(t)
	usr, _ := app.createUsers(t)
	fx := app.createCatalog(t)
	token := app.token(t, usr)

	rec := app.serve(newAuthRequest(http.MethodPost, "/api/purchase", token, marchallObj(t, order.NewOrder{VideoID: fx.video.ID})))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp OrderResponse
	unmarchall(t, rec, &resp)
	assert.Equal(t, order.StatusPaid, resp.Order.Status)
	require.NotNil(t, resp.Order.Payment)
	assert.Equal(t, order.MethodOnline, resp.Order.Payment.Method)
	assert.Equal(t, fx.video.Price, resp.Order.Payment.Amount)
	assert.True(t, app.hasAccess(t, token, fx.video.ID))
}

func Test_orderApi_transfer(t *testing.T) {
	app := setup(t)
	usr, admin := app.createUsers(t)
	fx := app.createCatalog(t)
	token, adminToken := app.token(t, usr), app.token(t, admin)
	o := app.createOrder(t, token, fx.video.ID)
	transferPath := "/api/orders/" + o.ID + "/pay-transfer"

	t.Run("file required", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodPost, transferPath, token, []byte(`{}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"file":"this field is required"}`, rec.Body.String())
	})

	var pmt order.Payment
	t.Run("upload receipt", func(t *testing.T) {
		rec := app.serve(newUploadRequest(t, transferPath, token, "receipt.pdf", "application/pdf", []byte("%PDF-1.4")))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp PaymentResponse
		unmarchall(t, rec, &resp)
		pmt = resp.Payment
		assert.Equal(t, order.MethodTransfer, pmt.Method)
		assert.Equal(t, order.StatusPending, pmt.Status)
		assert.True(t, strings.HasPrefix(pmt.ReceiptURL.String, "/uploads/transfers/"), pmt.ReceiptURL.String)
		assert.True(t, strings.HasSuffix(pmt.ReceiptURL.String, ".pdf"), pmt.ReceiptURL.String)
		assert.False(t, pmt.PaidAt.Valid)

		// the receipt is publicly served
		rec = app.serve(newRequest(http.MethodGet, pmt.ReceiptURL.String))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "%PDF-1.4", rec.Body.String())
	})

	// still pending: no access yet
	assert.False(t, app.hasAccess(t, token, fx.video.ID))

	t.Run("admin listing", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodGet, "/api/admin/orders?status=to_validate", adminToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page order.AdminOrderPage
		unmarchall(t, rec, &page)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 1, page.TotalPages)
		require.Len(t, page.Items, 1)
		item := page.Items[0]
		assert.Equal(t, o.ID, item.ID)
		assert.Equal(t, usr.Name, item.CustomerName)
		assert.Equal(t, fx.video.Title, item.CourseTitle)
		assert.Equal(t, pmt.ReceiptURL, item.ReceiptURL)

		rec = app.serve(newAuthRequest(http.MethodGet, "/api/admin/orders?status=done", adminToken))
		unmarchall(t, rec, &page)
		assert.Equal(t, 0, page.Total)
		assert.Empty(t, page.Items)
	})

	t.Run("customers cannot validate", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodPost, "/api/admin/orders/"+o.ID+"/validate", token))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("admin validates", func(t *testing.T) {
		app.mailSvc.Reset()
		rec := app.serve(newAuthRequest(http.MethodPost, "/api/admin/orders/"+o.ID+"/validate", adminToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp OrderResponse
		unmarchall(t, rec, &resp)
		assert.Equal(t, order.StatusPaid, resp.Order.Status)
		require.NotNil(t, resp.Order.Payment)
		assert.Equal(t, pmt.ID, resp.Order.Payment.ID)
		assert.Equal(t, order.StatusPaid, resp.Order.Payment.Status)
		assert.Equal(t, order.MethodTransfer, resp.Order.Payment.Method)
		assert.True(t, resp.Order.Payment.PaidAt.Valid)
		assert.Len(t, app.mailSvc.SentMessages(), 1)
	})

	assert.True(t, app.hasAccess(t, token, fx.video.ID))

	t.Run("paid orders cannot take a new receipt", func(t *testing.T) {
		rec := app.serve(newUploadRequest(t, transferPath, token, "receipt.png", "image/png", []byte("png")))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func Test_orderApi_rejectAndCancel(t *testing.T) {
	app := setup(t)
	usr, admin := app.createUsers(t)
	fx := app.createCatalog(t)
	token, adminToken := app.token(t, usr), app.token(t, admin)

	rejected := app.createOrder(t, token, fx.video.ID)
	cancelled := app.createOrder(t, token, fx.video.ID)

	notPending := marchallObj(t, httpErr{Error: order.ErrNotPending.Message})
	tests := []httpTest{
		{name: "reject", method: http.MethodPost, path: "/api/orders/" + rejected.ID + "/reject", token: adminToken, wantCode: http.StatusOK},
		{name: "reject twice", method: http.MethodPost, path: "/api/orders/" + rejected.ID + "/reject", token: adminToken, wantCode: http.StatusConflict, wantData: notPending},
		{name: "pay a failed order", method: http.MethodPost, path: "/api/orders/" + rejected.ID + "/pay-online", token: token, wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: order.ErrClosed.Message})},
		{name: "cancel", method: http.MethodPost, path: "/api/orders/" + cancelled.ID + "/cancel", token: token, wantCode: http.StatusOK},
		{name: "cancel twice", method: http.MethodPost, path: "/api/orders/" + cancelled.ID + "/cancel", token: token, wantCode: http.StatusConflict, wantData: notPending},
		{name: "unknown order", method: http.MethodPost, path: "/api/orders/lol/cancel", token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: order.ErrNotFound.Message})},
	}
	runHTTPTests(t, app, tests)

	rec := app.serve(newAuthRequest(http.MethodGet, "/api/admin/orders?status=failed", adminToken))
	var page order.AdminOrderPage
	unmarchall(t, rec, &page)
	assert.Equal(t, 2, page.Total)
	assert.False(t, app.hasAccess(t, token, fx.video.ID))
}

func Test_orderApi_stripe(t *testing.T) {
	const secret = "whsec_test"
	app := setup(t, func(conf *core.Config) {
		conf.Payment.DevMode = false
		conf.Payment.StripeSecretKey = "sk_test_123"
		conf.Payment.StripeWebhookSecret = secret
	})
	usr, _ := app.createUsers(t)
	fx := app.createCatalog(t)
	token := app.token(t, usr)
	o := app.createOrder(t, token, fx.video.ID)

	event := func(id, eventType, paymentStatus string) []byte {
		return []byte(fmt.Sprintf(
			`{"id":%q,"object":"event","type":%q,"data":{"object":{"id":"cs_test_1","object":"checkout.session","client_reference_id":%q,"payment_status":%q}}}`,
			id, eventType, o.ID, paymentStatus,
		))
	}
	send := func(payload []byte, signature string) int {
		req := newRequest(http.MethodPost, "/api/webhooks/stripe", payload)
		req.Header.Set(stripeSignatureHeader, signature)
		return app.serve(req).Code
	}
	sign := func(payload []byte) string {
		return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret}).Header
	}

	t.Run("bad signature", func(t *testing.T) {
		payload := event("evt_1", "checkout.session.completed", "paid")
		assert.Equal(t, http.StatusBadRequest, send(payload, "t=1,v1=deadbeef"))
		assert.False(t, app.hasAccess(t, token, fx.video.ID))
	})

	t.Run("unpaid session is ignored", func(t *testing.T) {
		payload := event("evt_2", "checkout.session.completed", "unpaid")
		assert.Equal(t, http.StatusOK, send(payload, sign(payload)))
		assert.False(t, app.hasAccess(t, token, fx.video.ID))
	})

	t.Run("other events are ignored", func(t *testing.T) {
		payload := event("evt_3", "checkout.session.expired", "unpaid")
		assert.Equal(t, http.StatusOK, send(payload, sign(payload)))
	})

	t.Run("paid session completes the order", func(t *testing.T) {
		payload := event("evt_4", "checkout.session.completed", "paid")
		assert.Equal(t, http.StatusOK, send(payload, sign(payload)))
		assert.True(t, app.hasAccess(t, token, fx.video.ID))

		got, err := app.orders.GetOrderByID(context.Background(), o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPaid, got.Status)
		require.NotNil(t, got.Payment)
		assert.Equal(t, order.MethodOnline, got.Payment.Method)

		// redelivery
		assert.Equal(t, http.StatusOK, send(payload, sign(payload)))
	})
}
