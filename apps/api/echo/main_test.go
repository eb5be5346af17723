package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/spf13/afero"

	"github.com/kidoparadise/kido/apps/di"
	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/booking"
	"github.com/kidoparadise/kido/core/catalog"
	"github.com/kidoparadise/kido/core/order"
	"github.com/kidoparadise/kido/core/review"
	"github.com/kidoparadise/kido/core/user"
	emailsvc "github.com/kidoparadise/kido/services/email"
	paymentsvc "github.com/kidoparadise/kido/services/payment"
	inmemdb "github.com/kidoparadise/kido/storage/database/inmem"
	filestore "github.com/kidoparadise/kido/storage/files"
	"github.com/kidoparadise/kido/tests"
)

var (
	errMissingTokenBody = httpErr{Error: "missing or malformed jwt"}
	errForbiddenBody    = httpErr{Error: "permission denied"}
)

type testApp struct {
	conf     *core.Config
	server   *Server
	users    user.Repository
	catalog  catalog.Repository
	orders   order.Repository
	bookings booking.Repository
	mailSvc  *emailsvc.ConsoleServiceMock
	files    *filestore.Store
}

// setup starts a Server over a fresh in-memory database and file system.
func setup(t *testing.T, configure ...func(conf *core.Config)) *testApp {
	conf := testutil.NewConfig()
	for _, fn := range configure {
		fn(conf)
	}
	logger := testutil.NopLogger{}

	db := inmemdb.Open()
	tx := inmemdb.NewTransactor(db)
	app := &testApp{
		conf:     conf,
		users:    inmemdb.NewUserRepository(db),
		catalog:  inmemdb.NewCatalogRepository(db),
		orders:   inmemdb.NewOrderRepository(db),
		bookings: inmemdb.NewBookingRepository(db),
		mailSvc:  emailsvc.NewConsoleServiceMock(conf, logger),
		files:    filestore.New(afero.NewMemMapFs()),
	}

	var gateway order.PaymentGateway
	if g := paymentsvc.NewStripeGateway(conf); g != nil {
		gateway = g
	}

	usrSvc := user.NewService(app.users, app.mailSvc)
	catalogSvc := catalog.NewService(app.catalog)
	orderSvc := order.NewService(app.orders, tx, catalogSvc, usrSvc, app.files, gateway, app.mailSvc, logger)
	translator := di.NewTranslator()

	app.server = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       di.NewValidator(translator),
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		CatalogSvc:     catalogSvc,
		OrderSvc:       orderSvc,
		BookingSvc:     booking.NewService(app.bookings, tx, catalogSvc, app.mailSvc, conf.Location()),
		ReviewSvc:      review.NewService(inmemdb.NewReviewRepository(db), orderSvc),
		Files:          app.files,
	})
	return app
}

func (app *testApp) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	token, err := GenerateToken(app.conf, GetUserClaims(app.conf, usr))
	if err != nil {
		t.Fatalf("token(): %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) *http.Request {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func newRequest(method, path string, data ...[]byte) *http.Request {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest sends content as the multipart "file" field.
func newUploadRequest(t *testing.T, path, token, filename, contentType string, content []byte) *http.Request {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatalf("newUploadRequest(): %v", err)
	}
	if _, err = io.Copy(part, bytes.NewReader(content)); err != nil {
		t.Fatalf("newUploadRequest(): %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("newUploadRequest(): %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarchall(%s): %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := app.serve(newAuthRequest(method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}

// fixtures

type catalogFixture struct {
	cat   catalog.Category
	pro   catalog.Professional
	video catalog.Video
}

func (app *testApp) createCatalog(t *testing.T) catalogFixture {
	cat := testutil.CreateCategory(t, app.catalog, "Sommeil", "sommeil")
	pro := testutil.CreateProfessional(t, app.catalog, "Dr Awa", "Pediatrics")
	vid := testutil.CreateVideo(t, app.catalog, "Bedtime routines", "bedtime-routines", 29.99, cat, pro, "")
	return catalogFixture{cat: cat, pro: pro, video: vid}
}

func (app *testApp) createUsers(t *testing.T) (usr, admin user.User) {
	usr = testutil.CreateUser(t, app.users, "Marie Curie", "marie@test.cd", "Rad1um!Pwd", user.RoleUser)
	admin = testutil.CreateUser(t, app.users, "Admin", "admin@test.cd", "Adm1n!Pwd", user.RoleAdmin)
	return usr, admin
}
