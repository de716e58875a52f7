package payments

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/caplatform/backend/internal/auth"
	"github.com/caplatform/backend/internal/testutil"
	"github.com/caplatform/backend/pkg/models"
)

func Test_PayAndCreateOrder_StatusCodes(t *testing.T) {
	db := testutil.OpenTestDB(t)
	rec := newReconciler(t, db, testModeGateway())

	client := testutil.SeedUser(t, db, models.RoleClient)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	csPay := testutil.SeedCase(t, db, client, plan, models.CasePending)
	csOrder := testutil.SeedCase(t, db, client, plan, models.CasePending)

	h := NewHandler(rec)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(testutil.InjectAuth(client.ID, client.Role))
	app.Post("/cases/:id/pay", h.Pay)
	app.Post("/cases/:id/razorpay/create-order", h.CreateOrder)

	// Creating an order only registers it with the gateway.
	resp, _ := app.Test(httptest.NewRequest("POST", "/cases/"+csOrder.ID.String()+"/razorpay/create-order", nil))
	if resp.StatusCode != 200 {
		t.Fatalf("create-order want 200, got %d", resp.StatusCode)
	}

	// Simulated pay creates the settled payment.
	resp, _ = app.Test(httptest.NewRequest("POST", "/cases/"+csPay.ID.String()+"/pay", nil))
	if resp.StatusCode != 201 {
		t.Fatalf("pay want 201, got %d", resp.StatusCode)
	}
}
