package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleClient Role = "client"
	RoleStaff  Role = "staff" // CA firm member
)

// CaseStatus defines lifecycle states for a case.
type CaseStatus string

const (
	CasePending        CaseStatus = "PENDING"
	CasePaid           CaseStatus = "PAID"
	CaseInProgress     CaseStatus = "IN_PROGRESS"
	CaseNeedsDocuments CaseStatus = "NEEDS_DOCUMENTS"
	CaseCompleted      CaseStatus = "COMPLETED"
	CaseCanceled       CaseStatus = "CANCELED"
)

// Terminal reports whether a status accepts no further transitions.
func (s CaseStatus) Terminal() bool {
	return s == CaseCompleted || s == CaseCanceled
}

/* =============================== Entities =============================== */

// User represents a client or a CA firm staff member.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         Role      `gorm:"type:varchar(20);not null" json:"role"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// IsStaff reports whether the user has the CA firm capability.
func (u *User) IsStaff() bool { return u.Role == RoleStaff }

// ServiceCategory is the top level of the catalog, e.g. "Startup", "GST".
type ServiceCategory struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`
	Icon        string    `gorm:"type:varchar(10)" json:"icon"`

	Services []Service `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"services,omitempty"`
}

func (c *ServiceCategory) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Service is a purchasable offering under a category, priced through plans.
type Service struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CategoryID  uuid.UUID `gorm:"type:uuid;not null;index" json:"category_id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	// No column default: a zero value would be silently replaced on insert,
	// so callers set it explicitly.
	IsActive bool `json:"is_active"`

	// Line-separated free-text lists shown on the service page.
	Features     string `json:"features"`
	Requirements string `json:"requirements"`
	Deliverables string `json:"deliverables"`

	Timeline string `gorm:"type:varchar(100)" json:"timeline"`
	Icon     string `gorm:"type:varchar(10)" json:"icon"`

	Plans []ServicePlan `gorm:"constraint:OnDelete:CASCADE" json:"plans,omitempty"`
}

func (s *Service) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ServicePlan is a priced tier of a service (e.g. "Basic", "Assured").
type ServicePlan struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ServiceID uuid.UUID `gorm:"type:uuid;not null;index:idx_service_plan_name,unique" json:"service_id"`
	Name      string    `gorm:"not null;index:idx_service_plan_name,unique" json:"name"`

	// Stored in paise to avoid float issues.
	PricePaise    int64  `gorm:"not null" json:"price_paise"`
	Features      string `json:"features"`
	IsRecommended bool   `gorm:"default:false" json:"is_recommended"`

	Service *Service `gorm:"foreignKey:ServiceID" json:"-"`
}

func (p *ServicePlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Case is an instance of a client purchasing a service plan, tracked through
// a fixed workflow. A case exclusively owns its Payment and Documents; the
// client and staff users are referenced, never owned (no cascade).
type Case struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"client_id"`
	ServicePlanID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"service_plan_id"`
	AssignedStaffID *uuid.UUID `gorm:"type:uuid;index" json:"assigned_staff_id"`
	Status          CaseStatus `gorm:"type:varchar(20);default:'PENDING'" json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// Relations
	ServicePlan ServicePlan `gorm:"foreignKey:ServicePlanID" json:"service_plan"`
	Client      *User       `gorm:"foreignKey:ClientID;constraint:OnDelete:RESTRICT" json:"-"`
	Payment     *Payment    `gorm:"constraint:OnDelete:CASCADE" json:"payment,omitempty"`
	Documents   []Document  `gorm:"constraint:OnDelete:CASCADE" json:"documents,omitempty"`
}

func (c *Case) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Payment is the single transaction record for a case. The unique CaseID
// enforces at most one payment per case; retries update the same row.
type Payment struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"case_id"`

	// Captured from the plan at processing time, in paise.
	AmountPaise int64 `gorm:"not null" json:"amount_paise"`

	// Holds the gateway order id until captured, then the gateway payment id.
	// SIM_-prefixed for simulated payments.
	TransactionID string     `gorm:"uniqueIndex" json:"transaction_id"`
	IsSuccessful  bool       `gorm:"default:false" json:"is_successful"`
	PaidAt        *time.Time `json:"paid_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Document is a file attached to a case by the client or staff.
type Document struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CaseID       uuid.UUID `gorm:"type:uuid;not null;index" json:"case_id"`
	Key          string    `gorm:"not null" json:"-"` // blob store object key
	OriginalName string    `json:"original_name"`
	DocumentType string    `gorm:"not null" json:"document_type"` // e.g. "Aadhaar Card"
	Mime         string    `json:"mime"`
	Size         int64     `json:"size"`
	UploadedByID uuid.UUID `gorm:"type:uuid;not null" json:"uploaded_by_id"`
	IsVerified   bool      `gorm:"default:false" json:"is_verified"`
	UploadedAt   time.Time `gorm:"autoCreateTime" json:"uploaded_at"`

	UploadedBy *User `gorm:"foreignKey:UploadedByID;constraint:OnDelete:RESTRICT" json:"-"`
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

// CaseHistory is an audit log entry for important case changes.
type CaseHistory struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CaseID    uuid.UUID  `gorm:"type:uuid;not null;index"`
	ActorID   uuid.UUID  `gorm:"type:uuid;index"` // who performed the action (client/staff/gateway)
	Action    string     `gorm:"type:varchar(50);not null"`
	OldStatus CaseStatus `gorm:"type:varchar(20)"`
	NewStatus CaseStatus `gorm:"type:varchar(20)"`
	Reason    string     `gorm:"type:text"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
}

func (h *CaseHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// All lists every model for migration, in dependency order.
func All() []any {
	return []any{
		&User{}, &ServiceCategory{}, &Service{}, &ServicePlan{},
		&Case{}, &Payment{}, &Document{}, &CaseHistory{},
	}
}
