package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/kidoparadise/kido/core"
	"github.com/kidoparadise/kido/core/catalog"
	"github.com/kidoparadise/kido/core/user"
)

// NewConfig returns the Config shared by the tests: in-memory engine, no Rollbar, dev payments on.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:          "Kido Paradise",
		Build:            "test",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Kido Paradise", Address: "noreply@localhost"},
		TimeZone:         "UTC",
		Server: core.ServerConfig{
			Host:               "localhost",
			JWTExpirationDelta: time.Hour,
		},
		Database: core.DatabaseConfig{Engine: "inmem"},
		Payment:  core.PaymentConfig{DevMode: true, Currency: "eur"},
	}
}

func CreateUser(t *testing.T, repo user.Repository, name, email, pwd, role string) user.User {
	now := time.Now().UTC()
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Role == "" {
		usr.Role = user.RoleUser
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCategory(t *testing.T, repo catalog.Repository, name, slug string) catalog.Category {
	cat, err := repo.CreateCategory(context.Background(), catalog.Category{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      slug,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateCategory() failed: %v", err)
	}
	return cat
}

func CreateProfessional(t *testing.T, repo catalog.Repository, name, specialty string) catalog.Professional {
	pro, err := repo.CreateProfessional(context.Background(), catalog.Professional{
		ID:        uuid.New().String(),
		Name:      name,
		Specialty: specialty,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateProfessional() failed: %v", err)
	}
	return pro
}

// CreateVideo inserts a VIDEO course. videoURL may be blank.
func CreateVideo(t *testing.T, repo catalog.Repository, title, slug string, price float64, cat catalog.Category, pro catalog.Professional, videoURL string) catalog.Video {
	ctx := context.Background()
	now := time.Now().UTC()
	vid, err := repo.CreateVideo(ctx, catalog.Video{
		ID:             uuid.New().String(),
		Slug:           slug,
		Title:          title,
		Description:    title + " description",
		Price:          price,
		Type:           catalog.TypeVideo,
		VideoURL:       null.NewString(videoURL, videoURL != ""),
		CategoryID:     cat.ID,
		ProfessionalID: pro.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("CreateVideo() failed: %v", err)
	}
	if vid, err = repo.GetVideoByID(ctx, vid.ID); err != nil {
		t.Fatalf("CreateVideo() failed: %v", err)
	}
	return vid
}

// NopLogger discards everything but fatal messages.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(msg string, _ ...interface{}) {
	panic(msg)
}
