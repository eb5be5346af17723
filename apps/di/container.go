// Package di wires the services shared by the API server and the admin CLI.
package di

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/booking"
	"github.com/kidoparadise/kido/core/catalog"
	"github.com/kidoparadise/kido/core/order"
	"github.com/kidoparadise/kido/core/review"
	"github.com/kidoparadise/kido/core/user"
	emailsvc "github.com/kidoparadise/kido/services/email"
	logsvc "github.com/kidoparadise/kido/services/logger"
	paymentsvc "github.com/kidoparadise/kido/services/payment"
	"github.com/kidoparadise/kido/storage/database"
	inmemdb "github.com/kidoparadise/kido/storage/database/inmem"
	sqlxrepos "github.com/kidoparadise/kido/storage/database/sqlx"
	filestore "github.com/kidoparadise/kido/storage/files"
)

const (
	EnginePostgres = "postgres"
	EngineInMem    = "inmem"
)

type (
	repositories struct {
		users    user.Repository
		catalog  catalog.Repository
		orders   order.Repository
		bookings booking.Repository
		reviews  review.Repository
		tx       core.Transactor
	}

	// Container holds the application dependencies. Close it when done.
	Container struct {
		Conf       *core.Config
		Logger     *logsvc.RollbarLogger
		DBLogger   *logsvc.RollbarLogger
		DB         *sqlx.DB // nil with the in-memory engine
		Validate   *validator.Validate
		Translator ut.Translator
		MailSvc    core.EmailService
		Files      *filestore.Store

		UserSvc    *user.Service
		CatalogSvc *catalog.Service
		OrderSvc   *order.Service
		BookingSvc *booking.Service
		ReviewSvc  *review.Service
	}
)

func NewLogger(conf *core.Config, prefix string) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	return logger
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator returns a validator with every custom tag and translation registered.
func NewValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug || conf.SendgridApiKey == "" {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// setUpDB creates the database if needed, connects and applies the pending migrations.
func setUpDB(ctx context.Context, conf *core.Config, migrate bool) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.StatusCheck(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if migrate {
		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

func newRepositories(conf *core.Config, db *sqlx.DB) repositories {
	if conf.Database.Engine == EngineInMem {
		mem := inmemdb.Open()
		return repositories{
			users:    inmemdb.NewUserRepository(mem),
			catalog:  inmemdb.NewCatalogRepository(mem),
			orders:   inmemdb.NewOrderRepository(mem),
			bookings: inmemdb.NewBookingRepository(mem),
			reviews:  inmemdb.NewReviewRepository(mem),
			tx:       inmemdb.NewTransactor(mem),
		}
	}
	return repositories{
		users:    sqlxrepos.NewUserRepository(db),
		catalog:  sqlxrepos.NewCatalogRepository(db),
		orders:   sqlxrepos.NewOrderRepository(db),
		bookings: sqlxrepos.NewBookingRepository(db),
		reviews:  sqlxrepos.NewReviewRepository(db),
		tx:       database.NewTransactor(db),
	}
}

// New builds every dependency. logPrefix tells the binaries' logs apart ("API : ", "ADMIN : ").
// With the postgres engine, migrate applies pending migrations on start.
func New(ctx context.Context, conf *core.Config, logPrefix string, migrate bool) (*Container, error) {
	c := &Container{
		Conf:     conf,
		Logger:   NewLogger(conf, logPrefix),
		DBLogger: NewLogger(conf, "DB : "),
	}

	switch conf.Database.Engine {
	case EngineInMem:
		c.Logger.Warn("using the in-memory database: data is lost on exit")
	case EnginePostgres:
		db, err := setUpDB(ctx, conf, migrate)
		if err != nil {
			return nil, errors.Wrap(err, "setting up database")
		}
		c.DB = db
	default:
		return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}

	c.Translator = NewTranslator()
	c.Validate = NewValidator(c.Translator)
	core.ParseEmailTemplates(c.Logger)
	c.MailSvc = newEmailService(conf, c.Logger)
	c.Files = filestore.NewOsStore(conf.Storage.PublicDir)

	// a nil *StripeGateway must not end up in a non-nil interface
	var gateway order.PaymentGateway
	if g := paymentsvc.NewStripeGateway(conf); g != nil {
		gateway = g
	}

	repos := newRepositories(conf, c.DB)
	c.UserSvc = user.NewService(repos.users, c.MailSvc)
	c.CatalogSvc = catalog.NewService(repos.catalog)
	c.OrderSvc = order.NewService(repos.orders, repos.tx, c.CatalogSvc, c.UserSvc, c.Files, gateway, c.MailSvc, c.Logger)
	c.BookingSvc = booking.NewService(repos.bookings, repos.tx, c.CatalogSvc, c.MailSvc, conf.Location())
	c.ReviewSvc = review.NewService(repos.reviews, c.OrderSvc)
	return c, nil
}

// StatusCheck reports whether the database answers. The in-memory engine is always up.
func (c *Container) StatusCheck(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	return database.StatusCheck(ctx, c.DB)
}

func (c *Container) Close() {
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.DBLogger.Error("failed to close database", err)
		}
	}
	c.Logger.Close()
}
