package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caplatform/backend/internal/tasks"
	"github.com/caplatform/backend/internal/testutil"
	"github.com/caplatform/backend/pkg/config"
	"github.com/caplatform/backend/pkg/models"
)

// recordingMailer captures sent messages for assertions.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

type sentMail struct {
	To      []string
	Subject string
	Body    string
}

func (m *recordingMailer) Send(ctx context.Context, to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMailer) all() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

func (m *recordingMailer) toAddress(addr string) []sentMail {
	var out []sentMail
	for _, s := range m.all() {
		for _, to := range s.To {
			if to == addr {
				out = append(out, s)
			}
		}
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		FrontendURL: "https://app.example.com",
		Email:       config.Email{AdminEmails: []string{"admin@x.com"}},
	}
}

func Test_PaymentSucceeded_MailsClientAndAdmins(t *testing.T) {
	db := testutil.OpenTestDB(t)
	mailer := &recordingMailer{}
	runner := tasks.New(1, time.Second, zap.NewNop().Sugar(), tasks.WithBaseDelay(time.Millisecond))
	disp := NewDispatcher(db, mailer, runner, testConfig(), zap.NewNop().Sugar())

	client := testutil.SeedUser(t, db, models.RoleClient)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CasePaid)

	now := time.Now()
	disp.Publish(PaymentSucceeded{
		Case: cs,
		Payment: &models.Payment{
			CaseID:        cs.ID,
			AmountPaise:   500_000,
			TransactionID: "pay_abc",
			IsSuccessful:  true,
			PaidAt:        &now,
		},
	})
	runner.Shutdown()

	clientMail := mailer.toAddress(client.Email)
	if len(clientMail) != 1 {
		t.Fatalf("want 1 client mail, got %d", len(clientMail))
	}
	if !strings.Contains(clientMail[0].Body, "₹5000.00") {
		t.Fatalf("amount not formatted in rupees: %q", clientMail[0].Body)
	}
	if !strings.Contains(clientMail[0].Body, "pay_abc") {
		t.Fatalf("transaction id missing: %q", clientMail[0].Body)
	}

	adminMail := mailer.toAddress("admin@x.com")
	if len(adminMail) != 1 {
		t.Fatalf("want 1 admin copy, got %d", len(adminMail))
	}
}

func Test_CaseCreated_HighValue_AlertsAdmins(t *testing.T) {
	db := testutil.OpenTestDB(t)
	mailer := &recordingMailer{}
	runner := tasks.New(1, time.Second, zap.NewNop().Sugar(), tasks.WithBaseDelay(time.Millisecond))
	disp := NewDispatcher(db, mailer, runner, testConfig(), zap.NewNop().Sugar())

	client := testutil.SeedUser(t, db, models.RoleClient)
	// Above the 50,000 rupee alert threshold.
	plan := testutil.SeedCatalog(t, db, 6_000_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CasePending)

	disp.Publish(CaseCreated{Case: cs})
	runner.Shutdown()

	if got := len(mailer.toAddress(client.Email)); got != 1 {
		t.Fatalf("want 1 client mail, got %d", got)
	}
	admin := mailer.toAddress("admin@x.com")
	if len(admin) != 1 || !strings.Contains(admin[0].Subject, "High-Value") {
		t.Fatalf("want high-value admin alert, got %#v", admin)
	}
}

func Test_CaseCreated_NormalValue_NoAdminAlert(t *testing.T) {
	db := testutil.OpenTestDB(t)
	mailer := &recordingMailer{}
	runner := tasks.New(1, time.Second, zap.NewNop().Sugar(), tasks.WithBaseDelay(time.Millisecond))
	disp := NewDispatcher(db, mailer, runner, testConfig(), zap.NewNop().Sugar())

	client := testutil.SeedUser(t, db, models.RoleClient)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CasePending)

	disp.Publish(CaseCreated{Case: cs})
	runner.Shutdown()

	if got := len(mailer.toAddress("admin@x.com")); got != 0 {
		t.Fatalf("ordinary case must not alert admins, got %d", got)
	}
}

func Test_DocumentUploaded_ByClient_CopiesAssignedStaff(t *testing.T) {
	db := testutil.OpenTestDB(t)
	mailer := &recordingMailer{}
	runner := tasks.New(1, time.Second, zap.NewNop().Sugar(), tasks.WithBaseDelay(time.Millisecond))
	disp := NewDispatcher(db, mailer, runner, testConfig(), zap.NewNop().Sugar())

	client := testutil.SeedUser(t, db, models.RoleClient)
	staff := testutil.SeedUser(t, db, models.RoleStaff)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CaseNeedsDocuments)
	cs.AssignedStaffID = &staff.ID

	disp.Publish(DocumentUploaded{
		Case: cs,
		Document: &models.Document{
			CaseID:       cs.ID,
			DocumentType: "Aadhaar Card",
			UploadedByID: client.ID,
		},
	})
	runner.Shutdown()

	if got := len(mailer.toAddress(client.Email)); got != 1 {
		t.Fatalf("want 1 client mail, got %d", got)
	}
	staffMail := mailer.toAddress(staff.Email)
	if len(staffMail) != 1 || !strings.Contains(staffMail[0].Subject, "Review") {
		t.Fatalf("assigned staff should get a review copy, got %#v", staffMail)
	}
}

func Test_DocumentUploaded_ByStaff_NoReviewCopy(t *testing.T) {
	db := testutil.OpenTestDB(t)
	mailer := &recordingMailer{}
	runner := tasks.New(1, time.Second, zap.NewNop().Sugar(), tasks.WithBaseDelay(time.Millisecond))
	disp := NewDispatcher(db, mailer, runner, testConfig(), zap.NewNop().Sugar())

	client := testutil.SeedUser(t, db, models.RoleClient)
	staff := testutil.SeedUser(t, db, models.RoleStaff)
	plan := testutil.SeedCatalog(t, db, 500_000, true)
	cs := testutil.SeedCase(t, db, client, plan, models.CaseInProgress)
	cs.AssignedStaffID = &staff.ID

	disp.Publish(DocumentUploaded{
		Case: cs,
		Document: &models.Document{
			CaseID:       cs.ID,
			DocumentType: "GST Certificate",
			UploadedByID: staff.ID,
			IsVerified:   true,
		},
	})
	runner.Shutdown()

	if got := len(mailer.toAddress(staff.Email)); got != 0 {
		t.Fatalf("staff uploads need no review copy, got %d", got)
	}
}
