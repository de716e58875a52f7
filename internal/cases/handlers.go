package cases

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/caplatform/backend/internal/auth"
	apperrors "github.com/caplatform/backend/internal/errors"
	"github.com/caplatform/backend/internal/storage"
	"github.com/caplatform/backend/pkg/logger"
	"github.com/caplatform/backend/pkg/models"
	"github.com/caplatform/backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type CreateCaseRequest struct {
	ServicePlanID string `json:"service_plan_id" validate:"required,uuid4"`
}

type UpdateStatusRequest struct {
	Status        string  `json:"status" validate:"omitempty,oneof=PAID IN_PROGRESS NEEDS_DOCUMENTS COMPLETED CANCELED"`
	AssignStaffID *string `json:"assign_staff_id" validate:"omitempty,uuid4"`
	Reason        string  `json:"reason" validate:"max=500"`
}

type CaseListItem struct {
	ID          uuid.UUID         `json:"id"`
	ServiceName string            `json:"service_name"`
	PlanName    string            `json:"plan_name"`
	PricePaise  int64             `json:"price_paise"`
	Status      models.CaseStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	Documents   int64             `json:"documents"`
}

type PageCases struct {
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Total    int64          `json:"total"`
	Pages    int            `json:"pages"`
	Items    []CaseListItem `json:"items"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db     *gorm.DB
	engine *Engine
	store  storage.Store
}

func NewHandler(db *gorm.DB, engine *Engine, store storage.Store) *Handler {
	return &Handler{db: db, engine: engine, store: store}
}

/* =============================== Create ================================= */

// Create opens a new case for the authenticated client.
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	clientID, _ := uuid.Parse(auth.MustUserID(c))
	planID, _ := uuid.Parse(in.ServicePlanID)

	cs, err := h.engine.CreateCase(c.Context(), clientID, planID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     cs.ID,
		"status": cs.Status,
	})
}

/* ================================ List ================================== */

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// List returns cases visible to the caller: clients see their own, staff see
// everything, optionally filtered by status.
func (h *Handler) List(c *fiber.Ctx) error {
	page, size := parsePage(c)
	status := c.Query("status")

	scope := func(q *gorm.DB) *gorm.DB {
		if auth.MustRole(c) != string(models.RoleStaff) {
			q = q.Where("cases.client_id = ?", auth.MustUserID(c))
		}
		if status != "" {
			q = q.Where("cases.status = ?", status)
		}
		return q
	}

	var total int64
	if err := scope(h.db.Model(&models.Case{})).Count(&total).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	rows := make([]CaseListItem, 0, size)
	err := scope(h.db.Table("cases")).
		Select(`cases.id, services.name AS service_name, service_plans.name AS plan_name,
          service_plans.price_paise, cases.status, cases.created_at,
          COUNT(documents.id) AS documents`).
		Joins("JOIN service_plans ON service_plans.id = cases.service_plan_id").
		Joins("JOIN services ON services.id = service_plans.service_id").
		Joins("LEFT JOIN documents ON documents.case_id = cases.id").
		Group("cases.id, services.name, service_plans.name, service_plans.price_paise").
		Order("cases.created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&rows).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return c.JSON(PageCases{
		Page:     page,
		PageSize: size,
		Total:    total,
		Pages:    int(math.Ceil(float64(total) / float64(size))),
		Items:    rows,
	})
}

/* ================================ Detail ================================ */

// Detail returns one case with its plan, payment and documents. Clients can
// only see their own cases.
func (h *Handler) Detail(c *fiber.Ctx) error {
	cs, err := h.loadVisible(c)
	if err != nil {
		return err
	}

	if cs.Documents == nil {
		cs.Documents = []models.Document{}
	}
	return c.JSON(cs)
}

// loadVisible fetches the case in the path and enforces ownership.
func (h *Handler) loadVisible(c *fiber.Ctx) (*models.Case, error) {
	var cs models.Case
	err := h.db.
		Preload("ServicePlan.Service").
		Preload("Payment").
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("uploaded_at ASC") }).
		First(&cs, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCaseNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if auth.MustRole(c) != string(models.RoleStaff) && cs.ClientID.String() != auth.MustUserID(c) {
		// Hide existence from non-owners.
		return nil, apperrors.ErrCaseNotFound
	}
	return &cs, nil
}

/* ============================ Update status ============================= */

// UpdateStatus applies a workflow transition. Staff only; the payment paths
// are the sole way a case leaves PENDING.
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	if auth.MustRole(c) != string(models.RoleStaff) {
		return fiber.ErrForbidden
	}

	var in UpdateStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	if in.Status == "" && in.AssignStaffID == nil {
		return fiber.NewError(fiber.StatusBadRequest, "nothing to update")
	}

	cs, err := h.loadVisible(c)
	if err != nil {
		return err
	}

	actorID, _ := uuid.Parse(auth.MustUserID(c))
	input := UpdateStatusInput{
		CaseID:    cs.ID,
		ActorID:   actorID,
		NewStatus: models.CaseStatus(in.Status),
		Reason:    in.Reason,
	}
	if in.AssignStaffID != nil {
		staffID, _ := uuid.Parse(*in.AssignStaffID)
		input.AssignStaffID = &staffID
	}

	updated, err := h.engine.UpdateStatus(c.Context(), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"id":     updated.ID,
		"status": updated.Status,
	})
}

/* ================================ Delete ================================ */

// Delete removes a case entirely. Rows cascade through the database; blobs
// are bulk-deleted afterwards on a best-effort basis.
func (h *Handler) Delete(c *fiber.Ctx) error {
	var cs models.Case
	err := h.db.Preload("Documents").First(&cs, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrCaseNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	keys := make([]string, 0, len(cs.Documents))
	for _, d := range cs.Documents {
		keys = append(keys, d.Key)
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []any{&models.Document{}, &models.Payment{}, &models.CaseHistory{}} {
			if err := tx.Where("case_id = ?", cs.ID).Delete(table).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		if err := tx.Delete(&models.Case{}, "id = ?", cs.ID).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(keys) > 0 && h.store != nil {
		if err := h.store.BulkDelete(keys); err != nil {
			logger.Get().Warnw("case blob cleanup failed", "case_id", cs.ID, "error", err)
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}
