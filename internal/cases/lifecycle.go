// Package cases implements the case workflow: creation against the service
// catalog, the status state machine, and document attachments.
package cases

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/caplatform/backend/internal/errors"
	"github.com/caplatform/backend/internal/notify"
	"github.com/caplatform/backend/pkg/database"
	"github.com/caplatform/backend/pkg/models"
	"github.com/caplatform/backend/pkg/utils"
)

// transitions is the full status graph. A status absent from the map accepts
// nothing (terminal).
var transitions = map[models.CaseStatus][]models.CaseStatus{
	models.CasePending:        {models.CasePaid},
	models.CasePaid:           {models.CaseInProgress, models.CaseNeedsDocuments, models.CaseCanceled},
	models.CaseInProgress:     {models.CaseNeedsDocuments, models.CaseCompleted, models.CaseCanceled},
	models.CaseNeedsDocuments: {models.CaseInProgress, models.CaseCompleted, models.CaseCanceled},
}

func allowed(from, to models.CaseStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Engine owns case state changes. All mutations run in a transaction with the
// case row locked, and notifications are published only after commit.
type Engine struct {
	db       *gorm.DB
	notifier notify.Notifier
}

func NewEngine(db *gorm.DB, notifier notify.Notifier) *Engine {
	return &Engine{db: db, notifier: notifier}
}

// CreateCase opens a new PENDING case for the client against a service plan.
// The plan must exist and its service must be active.
func (e *Engine) CreateCase(ctx context.Context, clientID, planID uuid.UUID) (*models.Case, error) {
	var plan models.ServicePlan
	err := e.db.WithContext(ctx).Preload("Service").First(&plan, "id = ?", planID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPlanNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if plan.Service == nil || !plan.Service.IsActive {
		return nil, apperrors.ErrInactiveService
	}

	cs := models.Case{
		ClientID:      clientID,
		ServicePlanID: plan.ID,
		Status:        models.CasePending,
	}
	if err := e.db.WithContext(ctx).Create(&cs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	cs.ServicePlan = plan

	utils.LogCaseHistory(ctx, e.db, cs.ID, clientID, "CASE_CREATED", "", models.CasePending, "")

	e.notifier.Publish(notify.CaseCreated{Case: &cs})
	return &cs, nil
}

// UpdateStatusInput carries a requested status change. A zero NewStatus
// means assignment-only: the staff member changes without a transition.
type UpdateStatusInput struct {
	CaseID        uuid.UUID
	ActorID       uuid.UUID
	NewStatus     models.CaseStatus
	AssignStaffID *uuid.UUID
	Reason        string
}

// UpdateStatus applies one transition under the state machine rules:
// terminal cases reject every update, PAID is the only status reachable from
// PENDING and requires a successful payment, and staff assignment must point
// at a staff user. The case row is locked for the duration of the check.
func (e *Engine) UpdateStatus(ctx context.Context, in UpdateStatusInput) (*models.Case, error) {
	var cs models.Case
	var old models.CaseStatus

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.Locked(tx).First(&cs, "id = ?", in.CaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrCaseNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		old = cs.Status

		// Terminal statuses accept nothing, not even a repeat of themselves.
		if old.Terminal() {
			return apperrors.WithMessage(apperrors.ErrIllegalTransition,
				fmt.Sprintf("case is %s and accepts no further updates", old))
		}

		if in.NewStatus != "" {
			if !allowed(old, in.NewStatus) {
				return apperrors.WithMessage(apperrors.ErrIllegalTransition,
					fmt.Sprintf("cannot move case from %s to %s", old, in.NewStatus))
			}

			// A case only leaves PENDING once money has cleared.
			if old == models.CasePending {
				var p models.Payment
				err := tx.First(&p, "case_id = ?", cs.ID).Error
				if err != nil || !p.IsSuccessful {
					return apperrors.ErrPaymentRequired
				}
			}
			cs.Status = in.NewStatus
		}

		if in.AssignStaffID != nil {
			var staff models.User
			if err := tx.First(&staff, "id = ?", *in.AssignStaffID).Error; err != nil {
				return apperrors.ErrStaffRequired
			}
			if !staff.IsStaff() {
				return apperrors.ErrStaffRequired
			}
			cs.AssignedStaffID = in.AssignStaffID
		}

		if err := tx.Save(&cs).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		action := "STATUS_CHANGED"
		if in.NewStatus == "" {
			action = "STAFF_ASSIGNED"
		}
		utils.LogCaseHistory(ctx, tx, cs.ID, in.ActorID, action, old, cs.Status, in.Reason)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.notifier.Publish(notify.CaseStatusChanged{Case: &cs, OldStatus: old, NewStatus: cs.Status})
	return &cs, nil
}
