package echoapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kidoparadise/kido/core/booking"
)

func Test_bookingApi(t *testing.T) {
	app := setup(t)
	usr, admin := app.createUsers(t)
	fx := app.createCatalog(t)
	token, adminToken := app.token(t, usr), app.token(t, admin)

	day := time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
	generatePath := "/api/professionals/" + fx.pro.ID + "/availability/generate"
	availabilityPath := "/api/professionals/" + fx.pro.ID + "/availability"

	availableAt := func(t *testing.T) []time.Time {
		rec := app.serve(newRequest(http.MethodGet, availabilityPath))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var slots []booking.Slot
		unmarchall(t, rec, &slots)
		starts := make([]time.Time, 0, len(slots))
		for _, s := range slots {
			starts = append(starts, s.StartTime)
		}
		return starts
	}
	isNineAM := func(ts time.Time) bool {
		ts = ts.UTC()
		return ts.Hour() == 9 && ts.Minute() == 0 && ts.Format("2006-01-02") == day
	}
	countNineAM := func(starts []time.Time) (n int) {
		for _, ts := range starts {
			if isNineAM(ts) {
				n++
			}
		}
		return n
	}

	tests := []httpTest{
		{name: "generate: admin required", method: http.MethodPost, path: generatePath, body: []byte(`{"date":"` + day + `"}`), token: token, wantCode: http.StatusForbidden},
		{name: "generate: missing date", method: http.MethodPost, path: generatePath, body: []byte(`{}`), token: adminToken, wantCode: http.StatusBadRequest, wantData: []byte(`{"date":"this field is required"}`)},
		{name: "generate: malformed date", method: http.MethodPost, path: generatePath, body: []byte(`{"date":"07/01/2026"}`), token: adminToken, wantCode: http.StatusBadRequest, wantData: []byte(`{"date":"date must be formatted as YYYY-MM-DD"}`)},
		{name: "generate: impossible date", method: http.MethodPost, path: generatePath, body: []byte(`{"date":"2026-13-01"}`), token: adminToken, wantCode: http.StatusBadRequest, wantData: []byte(`{"date":"invalid date"}`)},
		{name: "generate: unknown professional", method: http.MethodPost, path: "/api/professionals/lol/availability/generate", body: []byte(`{"date":"` + day + `"}`), token: adminToken, wantCode: http.StatusNotFound},
		{name: "no slots yet", path: availabilityPath, wantCode: http.StatusOK, wantData: []byte(`[]`)},
	}
	runHTTPTests(t, app, tests)

	t.Run("generate is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rec := app.serve(newAuthRequest(http.MethodPost, generatePath, adminToken, []byte(`{"date":"`+day+`"}`)))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.JSONEq(t, `{"message":"slots generated","count":18}`, rec.Body.String())
		}
		starts := availableAt(t)
		require.Len(t, starts, 18)
		assert.Equal(t, 8, starts[0].Hour())
		assert.Equal(t, 16, starts[17].Hour())
		assert.Equal(t, 30, starts[17].Minute())
	})

	reqBody := func(professionalID, date string) []byte {
		return marchallObj(t, booking.NewReservation{ProfessionalID: professionalID, Date: date, Message: "Sleep issues", CourseID: fx.video.ID})
	}
	bad := []httpTest{
		{name: "request: auth required", method: http.MethodPost, path: "/api/one-to-one", body: reqBody(fx.pro.ID, day+"T09:00"), wantCode: http.StatusUnauthorized},
		{name: "request: bad date", method: http.MethodPost, path: "/api/one-to-one", body: reqBody(fx.pro.ID, "tomorrow"), token: token, wantCode: http.StatusBadRequest, wantData: []byte(`{"date":"invalid date"}`)},
		{name: "request: unknown professional", method: http.MethodPost, path: "/api/one-to-one", body: reqBody("lol", day+"T09:00"), token: token, wantCode: http.StatusBadRequest, wantData: []byte(`{"professionalId":"professional not found"}`)},
	}
	runHTTPTests(t, app, bad)

	var res booking.Reservation
	t.Run("request", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodPost, "/api/one-to-one", token, reqBody(fx.pro.ID, day+"T09:00")))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp ReservationResponse
		unmarchall(t, rec, &resp)
		res = resp.Reservation
		assert.Equal(t, booking.StatusPending, res.Status)
		assert.True(t, isNineAM(res.ScheduledAt), res.ScheduledAt.String())
		assert.Equal(t, fx.video.ID, res.CourseID.String)

		// requesting does not book the slot
		assert.Equal(t, 1, countNineAM(availableAt(t)))

		rec = app.serve(newAuthRequest(http.MethodGet, "/api/one-to-one", token))
		var mine []booking.ReservationDetail
		unmarchall(t, rec, &mine)
		require.Len(t, mine, 1)
		assert.Equal(t, fx.pro.Name, mine[0].Professional.Name)
		require.NotNil(t, mine[0].Course)
		assert.Equal(t, fx.video.Slug, mine[0].Course.Slug)
	})

	actionPath := "/api/admin/reservations/" + res.ID
	apply := func(t *testing.T, action string) booking.ReservationDetail {
		rec := app.serve(newAuthRequest(http.MethodPatch, actionPath, adminToken, []byte(`{"action":"`+action+`"}`)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var detail booking.ReservationDetail
		unmarchall(t, rec, &detail)
		return detail
	}

	t.Run("unknown action", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodPatch, actionPath, adminToken, []byte(`{"action":"lol"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validate books the slot", func(t *testing.T) {
		app.mailSvc.Reset()
		detail := apply(t, "VALIDATE")
		assert.Equal(t, booking.StatusValidated, detail.Status)
		assert.Equal(t, usr.Email, detail.User.Email)
		assert.Equal(t, 0, countNineAM(availableAt(t)))
		assert.Len(t, availableAt(t), 17)

		sent := app.mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, usr.Email, sent[0].To[0].Address)

		rec := app.serve(newAuthRequest(http.MethodGet, "/api/admin/reservations?status="+booking.StatusValidated, adminToken))
		var list []booking.ReservationDetail
		unmarchall(t, rec, &list)
		assert.Len(t, list, 1)
		rec = app.serve(newAuthRequest(http.MethodGet, "/api/admin/reservations?status="+booking.StatusCancelled, adminToken))
		unmarchall(t, rec, &list)
		assert.Empty(t, list)
	})

	t.Run("cancel frees the slot", func(t *testing.T) {
		detail := apply(t, "cancel")
		assert.Equal(t, booking.StatusCancelled, detail.Status)
		assert.Equal(t, 1, countNineAM(availableAt(t)))
		assert.Len(t, availableAt(t), 18)
	})

	t.Run("detail", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodGet, actionPath, adminToken))
		require.Equal(t, http.StatusOK, rec.Code)
		var detail booking.ReservationDetail
		unmarchall(t, rec, &detail)
		assert.Equal(t, res.ID, detail.ID)
		assert.Equal(t, "Sleep issues", detail.Message.String)

		rec = app.serve(newAuthRequest(http.MethodGet, "/api/admin/reservations/lol", adminToken))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
