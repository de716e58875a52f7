// Package testutil provides shared test fixtures: an in-memory database with
// the full schema, seed helpers, and error assertions.
package testutil

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperrors "github.com/caplatform/backend/internal/errors"
	"github.com/caplatform/backend/pkg/models"
)

// OpenTestDB opens a fresh in-memory SQLite database with the full schema.
// Each test gets its own database, so no cleanup is needed.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	// SQLite table locks surface as errors under concurrent writers; a single
	// connection serializes transactions instead.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// InjectAuth puts auth locals into the Fiber context so MustUserID and
// MustRole work without a real JWT.
func InjectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", string(role))
		return c.Next()
	}
}

/* =============================== Seeders ================================ */

// SeedUser inserts a user with the given role.
func SeedUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()
	u := models.User{
		ID:    uuid.New(),
		Email: string(role) + "_" + uuid.NewString()[:8] + "@x.com",
		Role:  role,
		Name:  "Test " + string(role),
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	return &u
}

// SeedCatalog inserts one category, one service and one plan at the given
// price and activity flag.
func SeedCatalog(t *testing.T, db *gorm.DB, pricePaise int64, active bool) *models.ServicePlan {
	t.Helper()

	cat := models.ServiceCategory{ID: uuid.New(), Name: "Cat " + uuid.NewString()[:8]}
	if err := db.Create(&cat).Error; err != nil {
		t.Fatal(err)
	}
	svc := models.Service{
		ID:         uuid.New(),
		CategoryID: cat.ID,
		Name:       "Svc " + uuid.NewString()[:8],
		IsActive:   active,
	}
	if err := db.Create(&svc).Error; err != nil {
		t.Fatal(err)
	}
	plan := models.ServicePlan{
		ID:         uuid.New(),
		ServiceID:  svc.ID,
		Name:       "Basic",
		PricePaise: pricePaise,
	}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatal(err)
	}
	plan.Service = &svc
	return &plan
}

// SeedCase inserts a case in the given status for the client and plan.
func SeedCase(t *testing.T, db *gorm.DB, client *models.User, plan *models.ServicePlan, status models.CaseStatus) *models.Case {
	t.Helper()
	cs := models.Case{
		ID:            uuid.New(),
		ClientID:      client.ID,
		ServicePlanID: plan.ID,
		Status:        status,
	}
	if err := db.Create(&cs).Error; err != nil {
		t.Fatal(err)
	}
	cs.ServicePlan = *plan
	return &cs
}

/* ============================== Assertions ============================== */

// AssertAppError fails unless err carries the sentinel's error code.
func AssertAppError(t *testing.T, err error, want *apperrors.AppError) {
	t.Helper()
	if err == nil {
		t.Fatalf("want error %s, got nil", want.Code)
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("want AppError %s, got %T: %v", want.Code, err, err)
	}
	if appErr.Code != want.Code {
		t.Fatalf("want error code %s, got %s (%s)", want.Code, appErr.Code, appErr.Message)
	}
}
