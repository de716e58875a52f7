package cases

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/caplatform/backend/internal/errors"
	"github.com/caplatform/backend/internal/notify"
	"github.com/caplatform/backend/internal/testutil"
	"github.com/caplatform/backend/pkg/models"
)

// seedSuccessfulPayment marks the case as paid at the payment level without
// touching its status.
func seedSuccessfulPayment(t *testing.T, db *gorm.DB, cs *models.Case, amount int64) {
	t.Helper()
	now := time.Now()
	p := models.Payment{
		CaseID:        cs.ID,
		AmountPaise:   amount,
		TransactionID: "SIM_test_" + uuid.NewString()[:8],
		IsSuccessful:  true,
		PaidAt:        &now,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatal(err)
	}
}

/* ============================== CreateCase ============================== */

func Test_CreateCase_StartsPending_AndLogsHistory(t *testing.T) {
	db := testutil.OpenTestDB(t)
	engine := NewEngine(db, notify.Discard{})

	client := testutil.SeedUser(t, db, models.RoleClient)
	plan := testutil.SeedCatalog(t, db, 500_000, true)

	cs, err := engine.CreateCase(context.Background(), client.ID, plan.ID)
	if err != nil {
		t.Fatalf("create case: %v", err)
	}
	if cs.Status != models.CasePending {
		t.Fatalf("want PENDING, got %s", cs.Status)
	}

	var hist []models.CaseHistory
	if err := db.Find(&hist, "case_id = ?", cs.ID).Error; err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Action != "CASE_CREATED" {
		t.Fatalf("want one CASE_CREATED history row, got %#v", hist)
	}
}

func Test_CreateCase_InactiveService_Rejected(t *testing.T) {
	db := testutil.OpenTestDB(t)
	engine := NewEngine(db, notify.Discard{})

	client := testutil.SeedUser(t, db, models.RoleClient)
	plan := testutil.SeedCatalog(t, db, 500_000, false)

	_, err := engine.CreateCase(context.Background(), client.ID, plan.ID)
	testutil.AssertAppError(t, err, apperrors.ErrInactiveService)
}

func Test_CreateCase_UnknownPlan_Rejected(t *testing.T) {
	db := testutil.OpenTestDB(t)
	engine := NewEngine(db, notify.Discard{})

	client := testutil.SeedUser(t, db, models.RoleClient)

	_, err := engine.CreateCase(context.Background(), client.ID, uuid.New())
	testutil.AssertAppError(t, err, apperrors.ErrPlanNotFound)
}

/* ============================= UpdateStatus ============================= */

func Test_UpdateStatus_PaymentGate_BlocksLeavingPending(t *testing.T) {
	db := testutil.OpenTestDB(t)
	engine := NewEngine(db, notify.Discard{})

	client := testutil.SeedUser(t, db, models.RoleClient)
	staff := testutil.SeedUser(t, db, models.RoleStaff)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CasePending)

	_, err := engine.UpdateStatus(context.Background(), UpdateStatusInput{
		CaseID:    cs.ID,
		ActorID:   staff.ID,
		NewStatus: models.CasePaid,
	})
	testutil.AssertAppError(t, err, apperrors.ErrPaymentRequired)
}

func Test_UpdateStatus_PendingOnlyMovesToPaid(t *testing.T) {
	db := testutil.OpenTestDB(t)
	engine := NewEngine(db, notify.Discard{})

	client := testutil.SeedUser(t, db, models.RoleClient)
	staff := testutil.SeedUser(t, db, models.RoleStaff)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CasePending)

	// PAID is the only edge out of PENDING; everything else is illegal,
	// cancellation included.
	for _, target := range []models.CaseStatus{
		models.CaseCanceled, models.CaseInProgress, models.CaseNeedsDocuments, models.CaseCompleted,
	} {
		_, err := engine.UpdateStatus(context.Background(), UpdateStatusInput{
			CaseID:    cs.ID,
			ActorID:   staff.ID,
			NewStatus: target,
		})
		testutil.AssertAppError(t, err, apperrors.ErrIllegalTransition)
	}

	var reloaded models.Case
	if err := db.First(&reloaded, "id = ?", cs.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.CasePending {
		t.Fatalf("case must stay PENDING, got %s", reloaded.Status)
	}
}

func Test_UpdateStatus_TerminalCase_RejectsEverything(t *testing.T) {
	db := testutil.OpenTestDB(t)
	engine := NewEngine(db, notify.Discard{})

	client := testutil.SeedUser(t, db, models.RoleClient)
	staff := testutil.SeedUser(t, db, models.RoleStaff)
	plan := testutil.SeedCatalog(t, db, 500_000, true)

	for _, terminal := range []models.CaseStatus{models.CaseCompleted, models.CaseCanceled} {
		cs := testutil.SeedCase(t, db, client, plan, terminal)

		// Even a no-op repeat of the same status must be rejected.
		for _, target := range []models.CaseStatus{
			models.CasePaid, models.CaseInProgress, models.CaseCompleted, models.CaseCanceled,
		} {
			_, err := engine.UpdateStatus(context.Background(), UpdateStatusInput{
				CaseID:    cs.ID,
				ActorID:   staff.ID,
				NewStatus: target,
			})
			testutil.AssertAppError(t, err, apperrors.ErrIllegalTransition)
		}
	}
}

func Test_UpdateStatus_IllegalJump_Rejected(t *testing.T) {
	db := testutil.OpenTestDB(t)
	engine := NewEngine(db, notify.Discard{})

	client := testutil.SeedUser(t, db, models.RoleClient)
	staff := testutil.SeedUser(t, db, models.RoleStaff)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CasePaid)
	seedSuccessfulPayment(t, db, cs, plan.PricePaise)

	// PAID cannot jump straight to COMPLETED; work has to start first.
	_, err := engine.UpdateStatus(context.Background(), UpdateStatusInput{
		CaseID:    cs.ID,
		ActorID:   staff.ID,
		NewStatus: models.CaseCompleted,
	})
	testutil.AssertAppError(t, err, apperrors.ErrIllegalTransition)
}

func Test_UpdateStatus_HappyPath_ThroughWorkflow(t *testing.T) {
	db := testutil.OpenTestDB(t)
	engine := NewEngine(db, notify.Discard{})

	client := testutil.SeedUser(t, db, models.RoleClient)
	staff := testutil.SeedUser(t, db, models.RoleStaff)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CasePending)
	seedSuccessfulPayment(t, db, cs, plan.PricePaise)

	steps := []models.CaseStatus{
		models.CasePaid,
		models.CaseInProgress,
		models.CaseNeedsDocuments,
		models.CaseInProgress,
		models.CaseCompleted,
	}
	for _, next := range steps {
		out, err := engine.UpdateStatus(context.Background(), UpdateStatusInput{
			CaseID:    cs.ID,
			ActorID:   staff.ID,
			NewStatus: next,
		})
		if err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
		if out.Status != next {
			t.Fatalf("want %s, got %s", next, out.Status)
		}
	}

	var hist []models.CaseHistory
	if err := db.Order("created_at ASC").Find(&hist, "case_id = ?", cs.ID).Error; err != nil {
		t.Fatal(err)
	}
	if len(hist) != len(steps) {
		t.Fatalf("want %d history rows, got %d", len(steps), len(hist))
	}
}

func Test_UpdateStatus_AssignStaff_MustBeStaff(t *testing.T) {
	db := testutil.OpenTestDB(t)
	engine := NewEngine(db, notify.Discard{})

	client := testutil.SeedUser(t, db, models.RoleClient)
	otherClient := testutil.SeedUser(t, db, models.RoleClient)
	staff := testutil.SeedUser(t, db, models.RoleStaff)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CasePaid)
	seedSuccessfulPayment(t, db, cs, plan.PricePaise)

	// Assigning a client as staff fails.
	_, err := engine.UpdateStatus(context.Background(), UpdateStatusInput{
		CaseID:        cs.ID,
		ActorID:       staff.ID,
		NewStatus:     models.CaseInProgress,
		AssignStaffID: &otherClient.ID,
	})
	testutil.AssertAppError(t, err, apperrors.ErrStaffRequired)

	// Assigning a real staff member succeeds and sticks.
	out, err := engine.UpdateStatus(context.Background(), UpdateStatusInput{
		CaseID:        cs.ID,
		ActorID:       staff.ID,
		NewStatus:     models.CaseInProgress,
		AssignStaffID: &staff.ID,
	})
	if err != nil {
		t.Fatalf("assign staff: %v", err)
	}
	if out.AssignedStaffID == nil || *out.AssignedStaffID != staff.ID {
		t.Fatalf("staff assignment not persisted: %#v", out.AssignedStaffID)
	}
}

func Test_UpdateStatus_AssignmentOnly_KeepsStatus(t *testing.T) {
	db := testutil.OpenTestDB(t)
	engine := NewEngine(db, notify.Discard{})

	client := testutil.SeedUser(t, db, models.RoleClient)
	staff := testutil.SeedUser(t, db, models.RoleStaff)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CaseInProgress)

	out, err := engine.UpdateStatus(context.Background(), UpdateStatusInput{
		CaseID:        cs.ID,
		ActorID:       staff.ID,
		AssignStaffID: &staff.ID,
	})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if out.Status != models.CaseInProgress {
		t.Fatalf("status must not move, got %s", out.Status)
	}
	if out.AssignedStaffID == nil || *out.AssignedStaffID != staff.ID {
		t.Fatalf("staff assignment not persisted: %#v", out.AssignedStaffID)
	}

	var hist models.CaseHistory
	if err := db.Order("created_at DESC").First(&hist, "case_id = ?", cs.ID).Error; err != nil {
		t.Fatal(err)
	}
	if hist.Action != "STAFF_ASSIGNED" {
		t.Fatalf("want STAFF_ASSIGNED history row, got %s", hist.Action)
	}
}
