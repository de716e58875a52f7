package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/caplatform/backend/internal/errors"
	"github.com/caplatform/backend/internal/notify"
	"github.com/caplatform/backend/internal/tasks"
	"github.com/caplatform/backend/pkg/database"
	"github.com/caplatform/backend/pkg/logger"
	"github.com/caplatform/backend/pkg/models"
	"github.com/caplatform/backend/pkg/utils"
)

// Reconciler flips cases from PENDING to PAID. All three entry points
// (simulated pay, checkout verification, webhook) funnel into the same
// settle step under a row lock, so concurrent attempts produce exactly one
// winner and one payment record per case.
type Reconciler struct {
	db       *gorm.DB
	gw       *Gateway
	notifier notify.Notifier
	runner   *tasks.Runner
}

func NewReconciler(db *gorm.DB, gw *Gateway, notifier notify.Notifier, runner *tasks.Runner) *Reconciler {
	return &Reconciler{db: db, gw: gw, notifier: notifier, runner: runner}
}

// settled is the post-commit result of a successful reconciliation.
type settled struct {
	Case    *models.Case
	Payment *models.Payment
}

/* ============================ Simulated pay ============================= */

// Pay settles a case without a gateway round trip. The client must own the
// case and it must still be PENDING.
func (r *Reconciler) Pay(ctx context.Context, caseID, clientID uuid.UUID) (*models.Payment, error) {
	txnID := fmt.Sprintf("SIM_%s_%d", caseID.String()[:8], time.Now().UnixNano())

	out, err := r.reconcile(ctx, caseID, clientID, txnID, uuid.Nil)
	if err != nil {
		return nil, err
	}
	r.publish(out)
	return out.Payment, nil
}

/* ============================ Hosted checkout =========================== */

// CheckoutOrder is what the frontend needs to open the gateway widget.
type CheckoutOrder struct {
	OrderID     string `json:"order_id"`
	AmountPaise int64  `json:"amount_paise"`
	Currency    string `json:"currency"`
	KeyID       string `json:"key_id"`
	TestMode    bool   `json:"test_mode"`
}

// CreateOrder registers a gateway order for a PENDING case and records it on
// the payment row. Calling it again before capture replaces the pending
// order; after capture it fails with ALREADY_PAID.
func (r *Reconciler) CreateOrder(ctx context.Context, caseID, clientID uuid.UUID) (*CheckoutOrder, error) {
	var cs models.Case
	err := r.db.WithContext(ctx).Preload("ServicePlan").
		First(&cs, "id = ? AND client_id = ?", caseID, clientID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCaseNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if cs.Status != models.CasePending {
		return nil, apperrors.ErrCaseNotPending
	}

	order, err := r.gw.CreateOrder(cs.ServicePlan.PricePaise, cs.ID.String())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrGateway, err)
	}

	// Remember the order on the payment row so verification and webhooks can
	// find their way back to the case.
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Payment
		err := database.Locked(tx).First(&p, "case_id = ?", cs.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			p = models.Payment{
				CaseID:        cs.ID,
				AmountPaise:   cs.ServicePlan.PricePaise,
				TransactionID: order.ID,
			}
			return tx.Create(&p).Error
		case err != nil:
			return err
		case p.IsSuccessful:
			return apperrors.ErrAlreadyPaid
		default:
			p.TransactionID = order.ID
			p.AmountPaise = cs.ServicePlan.PricePaise
			return tx.Save(&p).Error
		}
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return &CheckoutOrder{
		OrderID:     order.ID,
		AmountPaise: order.Amount,
		Currency:    order.Currency,
		KeyID:       r.gw.keyID,
		TestMode:    r.gw.testMode,
	}, nil
}

// Verify settles a case from the checkout callback after checking the
// gateway signature. The order must belong to the case in the path and the
// case to the caller; nothing is mutated until both checks pass.
func (r *Reconciler) Verify(ctx context.Context, caseID, clientID uuid.UUID, orderID, paymentID, signature string) (*models.Payment, error) {
	if !r.gw.VerifyPaymentSignature(orderID, paymentID, signature) {
		return nil, apperrors.ErrInvalidSignature
	}

	orderCaseID, err := r.orderCase(ctx, orderID, paymentID)
	if err != nil {
		return nil, err
	}
	if orderCaseID != caseID {
		// Valid signature, wrong case URL. Settlement is left to the caller
		// who actually owns the order.
		return nil, apperrors.ErrCaseNotFound
	}

	out, err := r.reconcile(ctx, caseID, clientID, paymentID, clientID)
	if err != nil {
		return nil, err
	}
	r.publish(out)
	return out.Payment, nil
}

/* =============================== Webhook ================================ */

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook verifies the raw-body signature and queues the event for
// processing. Captures are additionally settled inline so the common path is
// immediate; the queued pass retries if that attempt loses a race with a
// concurrent checkout callback. Processing is idempotent: a replayed event
// finds no pending order and is skipped.
func (r *Reconciler) HandleWebhook(body []byte, signature string) error {
	if !r.gw.VerifyWebhookSignature(body, signature) {
		return apperrors.ErrInvalidSignature
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "malformed webhook payload")
	}

	orderID := evt.Payload.Payment.Entity.OrderID
	paymentID := evt.Payload.Payment.Entity.ID
	if evt.Event == "payment.captured" {
		if orderID == "" || paymentID == "" {
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "webhook payload missing ids")
		}
		r.processCaptured(context.Background(), orderID, paymentID)
	}

	// Every verified event goes through the queue; the deferred handler
	// ignores everything but captures.
	r.runner.Enqueue(tasks.Task{
		Name: "payments/webhook-event",
		Run: func(ctx context.Context) error {
			if evt.Event == "payment.captured" {
				r.processCaptured(ctx, orderID, paymentID)
			}
			return nil
		},
	})
	return nil
}

// processCaptured settles the case belonging to a captured order. An order
// with no matching pending payment (already settled, or unknown) is skipped.
func (r *Reconciler) processCaptured(ctx context.Context, orderID, paymentID string) {
	out, err := r.reconcileOrder(ctx, orderID, paymentID)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) &&
			(appErr.Code == apperrors.ErrCaseNotFound.Code || appErr.Code == apperrors.ErrAlreadyPaid.Code) {
			return // nothing pending for this order
		}
		logger.Get().Errorw("webhook reconcile failed",
			"order_id", orderID, "error", err)
		return
	}
	r.publish(out)
}

/* ============================= Settlement =============================== */

// orderCase resolves a gateway order id to the case holding it pending.
func (r *Reconciler) orderCase(ctx context.Context, orderID, paymentID string) (uuid.UUID, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).First(&p, "transaction_id = ? AND is_successful = ?", orderID, false).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		// A settled order has its transaction id swapped to the gateway
		// payment id, so replays land here.
		var done int64
		r.db.WithContext(ctx).Model(&models.Payment{}).
			Where("transaction_id = ? AND is_successful = ?", paymentID, true).
			Count(&done)
		if done > 0 {
			return uuid.Nil, apperrors.ErrAlreadyPaid
		}
		return uuid.Nil, apperrors.ErrCaseNotFound
	}
	return p.CaseID, nil
}

// reconcileOrder resolves a gateway order id to its case and settles it.
func (r *Reconciler) reconcileOrder(ctx context.Context, orderID, paymentID string) (*settled, error) {
	caseID, err := r.orderCase(ctx, orderID, paymentID)
	if err != nil {
		return nil, err
	}
	return r.reconcile(ctx, caseID, uuid.Nil, paymentID, uuid.Nil)
}

// reconcile settles one case inside a locked transaction. ownerID of
// uuid.Nil skips the ownership check (gateway-driven paths). Exactly one
// caller wins; the rest get ALREADY_PAID.
func (r *Reconciler) reconcile(ctx context.Context, caseID, ownerID uuid.UUID, txnID string, actorID uuid.UUID) (*settled, error) {
	var out settled

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cs models.Case
		q := database.Locked(tx).Preload("ServicePlan")
		if ownerID != uuid.Nil {
			q = q.Where("client_id = ?", ownerID)
		}
		if err := q.First(&cs, "id = ?", caseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrCaseNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		var p models.Payment
		err := tx.First(&p, "case_id = ?", cs.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			p = models.Payment{CaseID: cs.ID, AmountPaise: cs.ServicePlan.PricePaise}
		case err != nil:
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		case p.IsSuccessful:
			return apperrors.ErrAlreadyPaid
		}

		if cs.Status != models.CasePending {
			return apperrors.ErrCaseNotPending
		}

		now := time.Now()
		p.AmountPaise = cs.ServicePlan.PricePaise
		p.TransactionID = txnID
		p.IsSuccessful = true
		p.PaidAt = &now
		if err := tx.Save(&p).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		cs.Status = models.CasePaid
		if err := tx.Save(&cs).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		actor := actorID
		if actor == uuid.Nil {
			actor = cs.ClientID
		}
		utils.LogCaseHistory(ctx, tx, cs.ID, actor, "PAYMENT_CAPTURED",
			models.CasePending, models.CasePaid, "transaction "+txnID)

		out = settled{Case: &cs, Payment: &p}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// publish emits the post-commit events for a settlement.
func (r *Reconciler) publish(out *settled) {
	r.notifier.Publish(notify.PaymentSucceeded{Case: out.Case, Payment: out.Payment})
	r.notifier.Publish(notify.CaseStatusChanged{
		Case:      out.Case,
		OldStatus: models.CasePending,
		NewStatus: models.CasePaid,
	})
}
