package testutil

import (
	"testing"

	"github.com/caplatform/backend/pkg/models"
)

func Test_OpenTestDB_MigratesFullSchema(t *testing.T) {
	db := OpenTestDB(t)

	plan := SeedCatalog(t, db, 500_000, false)
	if plan.Service == nil {
		t.Fatal("seed did not attach the service")
	}

	// The category -> services association must resolve through CategoryID.
	var cat models.ServiceCategory
	if err := db.Preload("Services").First(&cat, "id = ?", plan.Service.CategoryID).Error; err != nil {
		t.Fatalf("load category with services: %v", err)
	}
	if len(cat.Services) != 1 {
		t.Fatalf("want 1 service under category, got %d", len(cat.Services))
	}
	if cat.Services[0].IsActive {
		t.Fatal("inactive seed came back active")
	}
}
