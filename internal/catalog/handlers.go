// Package catalog serves the public service catalog (categories, services,
// plans) and the staff-only endpoints that maintain it.
package catalog

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/caplatform/backend/internal/errors"
	"github.com/caplatform/backend/pkg/models"
	"github.com/caplatform/backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required,max=80"`
	Description string `json:"description" validate:"max=2000"`
	Icon        string `json:"icon" validate:"max=10"`
}

type CreateServiceRequest struct {
	CategoryID   string `json:"category_id" validate:"required,uuid4"`
	Name         string `json:"name" validate:"required,max=120"`
	Description  string `json:"description" validate:"max=5000"`
	Features     string `json:"features" validate:"max=5000"`
	Requirements string `json:"requirements" validate:"max=5000"`
	Deliverables string `json:"deliverables" validate:"max=5000"`
	Timeline     string `json:"timeline" validate:"max=100"`
	Icon         string `json:"icon" validate:"max=10"`
}

type UpdateServiceRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=120"`
	Description  *string `json:"description" validate:"omitempty,max=5000"`
	IsActive     *bool   `json:"is_active"`
	Features     *string `json:"features" validate:"omitempty,max=5000"`
	Requirements *string `json:"requirements" validate:"omitempty,max=5000"`
	Deliverables *string `json:"deliverables" validate:"omitempty,max=5000"`
	Timeline     *string `json:"timeline" validate:"omitempty,max=100"`
	Icon         *string `json:"icon" validate:"omitempty,max=10"`
}

type CreatePlanRequest struct {
	ServiceID     string `json:"service_id" validate:"required,uuid4"`
	Name          string `json:"name" validate:"required,max=80"`
	PricePaise    int64  `json:"price_paise" validate:"gte=0"`
	Features      string `json:"features" validate:"max=5000"`
	IsRecommended bool   `json:"is_recommended"`
}

type UpdatePlanRequest struct {
	Name          *string `json:"name" validate:"omitempty,max=80"`
	PricePaise    *int64  `json:"price_paise" validate:"omitempty,gte=0"`
	Features      *string `json:"features" validate:"omitempty,max=5000"`
	IsRecommended *bool   `json:"is_recommended"`
}

/* ============================== Handler ================================= */

type Handler struct{ db *gorm.DB }

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

/* ============================ Public reads ============================== */

// ListCategories returns the full catalog tree: every category with its
// active services and their plans. Inactive services are browsable only by
// staff through the admin endpoints.
func (h *Handler) ListCategories(c *fiber.Ctx) error {
	var cats []models.ServiceCategory
	err := h.db.
		Preload("Services", "is_active = ?", true).
		Preload("Services.Plans", func(db *gorm.DB) *gorm.DB {
			return db.Order("price_paise ASC")
		}).
		Order("name ASC").
		Find(&cats).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if cats == nil {
		cats = []models.ServiceCategory{}
	}
	return c.JSON(cats)
}

// GetService returns one service with its plans. 404 for inactive services
// unless the caller is staff.
func (h *Handler) GetService(c *fiber.Ctx) error {
	id := c.Params("id")

	var svc models.Service
	err := h.db.
		Preload("Plans", func(db *gorm.DB) *gorm.DB { return db.Order("price_paise ASC") }).
		First(&svc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if !svc.IsActive && c.Locals("role") != string(models.RoleStaff) {
		return fiber.ErrNotFound
	}
	if svc.Plans == nil {
		svc.Plans = []models.ServicePlan{}
	}
	return c.JSON(svc)
}

/* =========================== Staff management =========================== */

func (h *Handler) CreateCategory(c *fiber.Ctx) error {
	var in CreateCategoryRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cat := models.ServiceCategory{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Icon:        in.Icon,
	}
	if err := h.db.Create(&cat).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "category name already exists")
	}
	return c.Status(fiber.StatusCreated).JSON(cat)
}

func (h *Handler) CreateService(c *fiber.Ctx) error {
	var in CreateServiceRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	catID, _ := uuid.Parse(in.CategoryID)
	var cat models.ServiceCategory
	if err := h.db.First(&cat, "id = ?", catID).Error; err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "category not found")
	}

	svc := models.Service{
		CategoryID:   catID,
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		IsActive:     true,
		Features:     in.Features,
		Requirements: in.Requirements,
		Deliverables: in.Deliverables,
		Timeline:     in.Timeline,
		Icon:         in.Icon,
	}
	if err := h.db.Create(&svc).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return c.Status(fiber.StatusCreated).JSON(svc)
}

func (h *Handler) UpdateService(c *fiber.Ctx) error {
	var in UpdateServiceRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var svc models.Service
	if err := h.db.First(&svc, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if in.Name != nil {
		svc.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		svc.Description = *in.Description
	}
	if in.IsActive != nil {
		svc.IsActive = *in.IsActive
	}
	if in.Features != nil {
		svc.Features = *in.Features
	}
	if in.Requirements != nil {
		svc.Requirements = *in.Requirements
	}
	if in.Deliverables != nil {
		svc.Deliverables = *in.Deliverables
	}
	if in.Timeline != nil {
		svc.Timeline = *in.Timeline
	}
	if in.Icon != nil {
		svc.Icon = *in.Icon
	}

	if err := h.db.Save(&svc).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return c.JSON(svc)
}

func (h *Handler) CreatePlan(c *fiber.Ctx) error {
	var in CreatePlanRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	svcID, _ := uuid.Parse(in.ServiceID)
	var svc models.Service
	if err := h.db.First(&svc, "id = ?", svcID).Error; err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "service not found")
	}

	plan := models.ServicePlan{
		ServiceID:     svcID,
		Name:          strings.TrimSpace(in.Name),
		PricePaise:    in.PricePaise,
		Features:      in.Features,
		IsRecommended: in.IsRecommended,
	}
	if err := h.db.Create(&plan).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "plan name already exists for this service")
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

func (h *Handler) UpdatePlan(c *fiber.Ctx) error {
	var in UpdatePlanRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var plan models.ServicePlan
	if err := h.db.First(&plan, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if in.Name != nil {
		plan.Name = strings.TrimSpace(*in.Name)
	}
	if in.PricePaise != nil {
		plan.PricePaise = *in.PricePaise
	}
	if in.Features != nil {
		plan.Features = *in.Features
	}
	if in.IsRecommended != nil {
		plan.IsRecommended = *in.IsRecommended
	}

	if err := h.db.Save(&plan).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return c.JSON(plan)
}

// DeletePlan removes a plan that no case references. Plans with historical
// cases are protected to keep pricing auditable.
func (h *Handler) DeletePlan(c *fiber.Ctx) error {
	id := c.Params("id")

	var plan models.ServicePlan
	if err := h.db.First(&plan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var inUse int64
	if err := h.db.Model(&models.Case{}).Where("service_plan_id = ?", plan.ID).Count(&inUse).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if inUse > 0 {
		return apperrors.WithMessage(apperrors.ErrConflict, "plan has existing cases and cannot be deleted")
	}

	if err := h.db.Delete(&plan).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
