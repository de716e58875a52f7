// Package notify turns domain events into templated emails for the relevant
// party (client, assigned staff, or admins). Delivery happens on the
// background task runner with bounded retries; a failed notification is
// logged and dropped, never surfaced to the triggering request.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/caplatform/backend/internal/tasks"
	"github.com/caplatform/backend/pkg/config"
	"github.com/caplatform/backend/pkg/models"
)

// Cases above this amount additionally alert the admins.
const highValueThresholdPaise = 50_000 * 100

// maxSendAttempts bounds redelivery of a single message.
const maxSendAttempts = 3

type Dispatcher struct {
	db     *gorm.DB
	mailer Mailer
	runner *tasks.Runner
	cfg    *config.Config
	log    *zap.SugaredLogger
}

func NewDispatcher(db *gorm.DB, mailer Mailer, runner *tasks.Runner, cfg *config.Config, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{db: db, mailer: mailer, runner: runner, cfg: cfg, log: log}
}

// Publish fans an event out to its recipients. Safe to call after the
// business transaction has committed; never blocks on delivery.
func (d *Dispatcher) Publish(evt Event) {
	switch e := evt.(type) {
	case CaseCreated:
		d.caseCreated(e)
	case CaseStatusChanged:
		d.statusChanged(e)
	case PaymentSucceeded:
		d.paymentSucceeded(e)
	case DocumentUploaded:
		d.documentUploaded(e)
	default:
		d.log.Warnw("unknown notification event", "event", fmt.Sprintf("%T", evt))
	}
}

func (d *Dispatcher) caseCreated(e CaseCreated) {
	cs := d.hydrate(e.Case)
	client := d.user(cs.ClientID)
	if client == nil {
		return
	}

	subject := fmt.Sprintf("Case #%s Created Successfully", shortID(cs))
	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your case has been created successfully.\n\n"+
			"Case ID: #%s\n"+
			"Service: %s\n"+
			"Plan: %s\n"+
			"Amount: %s\n"+
			"Status: %s\n\n"+
			"Next Steps:\n"+
			"1. Complete the payment to proceed.\n\n"+
			"You can track your case progress at %s.\n\n"+
			"Best regards,\nCA Firm Platform Team",
		displayName(client), shortID(cs),
		cs.ServicePlan.Service.Name, cs.ServicePlan.Name,
		rupees(cs.ServicePlan.PricePaise), cs.Status, d.cfg.FrontendURL,
	)
	d.deliver("case-created", []string{client.Email}, subject, body)

	if cs.ServicePlan.PricePaise > highValueThresholdPaise {
		d.notifyAdmins(
			fmt.Sprintf("High-Value Case Created: #%s", shortID(cs)),
			fmt.Sprintf(
				"A high-value case has been created:\n\n"+
					"Case ID: #%s\nClient: %s\nService: %s\nPlan: %s\nAmount: %s\n\n"+
					"Please prioritize review and assignment.",
				shortID(cs), client.Email, cs.ServicePlan.Service.Name,
				cs.ServicePlan.Name, rupees(cs.ServicePlan.PricePaise),
			),
		)
	}
}

func (d *Dispatcher) statusChanged(e CaseStatusChanged) {
	cs := d.hydrate(e.Case)
	client := d.user(cs.ClientID)
	if client == nil {
		return
	}

	// Assignment-only updates keep the status as-is; the client has nothing
	// new to hear about.
	if e.OldStatus != e.NewStatus {
		subject := fmt.Sprintf("Case Update: Case #%s is now %s", shortID(cs), e.NewStatus)
		body := fmt.Sprintf(
			"Dear %s,\n\n"+
				"The status of your case (%s - %s) has been updated to: %s.\n\n"+
				"You can view the full details in your platform dashboard: %s",
			displayName(client), cs.ServicePlan.Service.Name, cs.ServicePlan.Name,
			e.NewStatus, d.cfg.FrontendURL,
		)
		d.deliver("status-changed", []string{client.Email}, subject, body)
	}

	// Staff newly put on the case hear about it too.
	if cs.AssignedStaffID != nil {
		if staff := d.user(*cs.AssignedStaffID); staff != nil {
			d.deliver("staff-assigned", []string{staff.Email},
				fmt.Sprintf("Case Assigned: #%s", shortID(cs)),
				fmt.Sprintf(
					"Dear %s,\n\n"+
						"Case #%s (%s - %s) for client %s is assigned to you and is now %s.\n\n"+
						"Please review the case details and update the status accordingly.",
					displayName(staff), shortID(cs), cs.ServicePlan.Service.Name,
					cs.ServicePlan.Name, client.Email, e.NewStatus,
				),
			)
		}
	}
}

func (d *Dispatcher) paymentSucceeded(e PaymentSucceeded) {
	cs := d.hydrate(e.Case)
	client := d.user(cs.ClientID)
	if client == nil {
		return
	}

	paidAt := ""
	if e.Payment.PaidAt != nil {
		paidAt = e.Payment.PaidAt.Format("2006-01-02 15:04")
	}

	subject := fmt.Sprintf("Payment Confirmed - Case #%s", shortID(cs))
	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your payment has been successfully processed!\n\n"+
			"Case ID: #%s\n"+
			"Amount Paid: %s\n"+
			"Transaction ID: %s\n"+
			"Payment Date: %s\n\n"+
			"Your case is now in progress. Our team will review and assign it to a staff member shortly.\n\n"+
			"Best regards,\nCA Firm Platform Team",
		displayName(client), shortID(cs), rupees(e.Payment.AmountPaise),
		e.Payment.TransactionID, paidAt,
	)
	d.deliver("payment-confirmed", []string{client.Email}, subject, body)

	d.notifyAdmins(
		fmt.Sprintf("Payment Received - Case #%s", shortID(cs)),
		fmt.Sprintf(
			"New payment received:\n\n"+
				"Case ID: #%s\nClient: %s\nService: %s\nAmount: %s\nTransaction ID: %s\n\n"+
				"Please assign staff to this case.",
			shortID(cs), client.Email, cs.ServicePlan.Service.Name,
			rupees(e.Payment.AmountPaise), e.Payment.TransactionID,
		),
	)
}

func (d *Dispatcher) documentUploaded(e DocumentUploaded) {
	cs := d.hydrate(e.Case)
	client := d.user(cs.ClientID)
	if client == nil {
		return
	}
	uploader := d.user(e.Document.UploadedByID)
	uploaderEmail := ""
	if uploader != nil {
		uploaderEmail = uploader.Email
	}

	verified := "Pending"
	if e.Document.IsVerified {
		verified = "Verified"
	}

	subject := fmt.Sprintf("Document Uploaded - Case #%s", shortID(cs))
	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"A new document has been uploaded for your case #%s.\n\n"+
			"Document Type: %s\n"+
			"Uploaded By: %s\n"+
			"Verification Status: %s\n\n"+
			"You can view this document in your case dashboard.",
		displayName(client), shortID(cs), e.Document.DocumentType, uploaderEmail, verified,
	)
	d.deliver("document-uploaded", []string{client.Email}, subject, body)

	// Client uploads need staff review.
	if uploader != nil && !uploader.IsStaff() && cs.AssignedStaffID != nil {
		if staff := d.user(*cs.AssignedStaffID); staff != nil {
			d.deliver("document-review", []string{staff.Email},
				fmt.Sprintf("New Document for Review - Case #%s", shortID(cs)),
				fmt.Sprintf(
					"Dear %s,\n\n"+
						"A new document has been uploaded by the client for Case #%s.\n\n"+
						"Document Type: %s\nClient: %s\n\n"+
						"Please review and verify the document.",
					displayName(staff), shortID(cs), e.Document.DocumentType, client.Email,
				),
			)
		}
	}
}

/* ============================== Helpers ================================ */

// deliver hands the message to the task runner: up to 3 attempts with
// exponential backoff, then logged as permanently failed.
func (d *Dispatcher) deliver(kind string, to []string, subject, body string) {
	d.runner.Enqueue(tasks.Task{
		Name:        "notify/" + kind,
		MaxAttempts: maxSendAttempts,
		Run: func(ctx context.Context) error {
			return d.mailer.Send(ctx, to, subject, body)
		},
	})
}

func (d *Dispatcher) notifyAdmins(subject, body string) {
	if len(d.cfg.Email.AdminEmails) == 0 {
		return
	}
	d.deliver("admin", d.cfg.Email.AdminEmails, subject, body)
}

// hydrate ensures the plan and service associations are loaded.
func (d *Dispatcher) hydrate(cs *models.Case) *models.Case {
	if cs.ServicePlan.ID != cs.ServicePlanID || cs.ServicePlan.Service == nil {
		var full models.Case
		if err := d.db.Preload("ServicePlan.Service").First(&full, "id = ?", cs.ID).Error; err != nil {
			d.log.Errorw("notify: load case failed", "case_id", cs.ID, "error", err)
		} else {
			full.AssignedStaffID = cs.AssignedStaffID
			cs = &full
		}
	}
	if cs.ServicePlan.Service == nil {
		cs.ServicePlan.Service = &models.Service{}
	}
	return cs
}

func (d *Dispatcher) user(id interface{ String() string }) *models.User {
	var u models.User
	if err := d.db.First(&u, "id = ?", id.String()).Error; err != nil {
		d.log.Errorw("notify: load user failed", "user_id", id.String(), "error", err)
		return nil
	}
	return &u
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return "Client"
}

// rupees renders an amount stored in paise.
func rupees(paise int64) string {
	return fmt.Sprintf("₹%d.%02d", paise/100, paise%100)
}

// shortID keeps email subjects readable.
func shortID(cs *models.Case) string {
	return cs.ID.String()[:8]
}
