package models

import (
	"time"

	"github.com/google/uuid"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleClient      Role = "client"
	RoleLawyer      Role = "lawyer"
	RoleCoordinator Role = "coordinator"
	RoleAdmin       Role = "admin"
)

// UserStatus is the account state; only lawyers are ever suspended in practice.
type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserSuspended UserStatus = "SUSPENDED"
)

// CaseStatus defines lifecycle states for a case.
type CaseStatus string

const (
	CasePending             CaseStatus = "PENDING"
	CaseActive              CaseStatus = "ACTIVE"
	CasePendingReassignment CaseStatus = "PENDING_REASSIGNMENT"
	CaseResolved            CaseStatus = "RESOLVED"
	CaseClosed              CaseStatus = "CLOSED"
)

// Terminal reports whether no further assignment may happen.
func (s CaseStatus) Terminal() bool { return s == CaseResolved || s == CaseClosed }

type CasePriority string

const (
	PriorityLow    CasePriority = "LOW"
	PriorityMedium CasePriority = "MEDIUM"
	PriorityHigh   CasePriority = "HIGH"
	PriorityUrgent CasePriority = "URGENT"
)

type AssignmentStatus string

const (
	AssignmentAccepted AssignmentStatus = "ACCEPTED"
	AssignmentDeclined AssignmentStatus = "DECLINED"
	AssignmentPending  AssignmentStatus = "PENDING"
)

type ActivityType string

const (
	ActivityAssignment   ActivityType = "ASSIGNMENT"
	ActivityUpdate       ActivityType = "UPDATE"
	ActivityStatusChange ActivityType = "STATUS_CHANGE"
)

// RequestStatus defines lifecycle states for a service request.
type RequestStatus string

const (
	RequestPending    RequestStatus = "PENDING"
	RequestApproved   RequestStatus = "APPROVED"
	RequestRejected   RequestStatus = "REJECTED"
	RequestInProgress RequestStatus = "IN_PROGRESS"
	RequestCompleted  RequestStatus = "COMPLETED"
	RequestCancelled  RequestStatus = "CANCELLED"
)

type ServiceType string

const (
	ServiceLegalAid     ServiceType = "LEGAL_AID"
	ServicePaid         ServiceType = "PAID"
	ServiceConsultation ServiceType = "CONSULTATION"
)

// PayStatus defines lifecycle states for a service payment.
type PayStatus string

const (
	PayPending  PayStatus = "PENDING"
	PayPaid     PayStatus = "PAID"
	PayFailed   PayStatus = "FAILED"
	PayRefunded PayStatus = "REFUNDED"
)

type VerificationType string

const (
	VerifyDocumentType VerificationType = "DOCUMENT"
	VerifyIncomeType   VerificationType = "INCOME"
	VerifyPaymentType  VerificationType = "PAYMENT"
)

type VerificationStatus string

const (
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

/* =============================== Entities =============================== */

// User represents a client, lawyer, coordinator or administrator.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Role         Role       `gorm:"type:varchar(20);not null;index" json:"role"`
	Status       UserStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	Name         string     `json:"name"`
	Jurisdiction string     `json:"jurisdiction,omitempty"`
	BarNumber    string     `json:"bar_number,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Case represents a legal matter. LawyerID is a weak reference: it survives a
// suspension so the previous assignment stays inspectable.
type Case struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID    uuid.UUID    `gorm:"type:uuid;not null;index" json:"client_id"`
	LawyerID    *uuid.UUID   `gorm:"type:uuid;index" json:"lawyer_id"`
	Title       string       `gorm:"not null" json:"title"`
	Category    string       `json:"category"`
	Description string       `gorm:"type:text" json:"description"`
	Priority    CasePriority `gorm:"type:varchar(20);not null;default:'MEDIUM'" json:"priority"`
	Status      CaseStatus   `gorm:"type:varchar(30);not null;default:'PENDING';index" json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`

	Assignments []CaseAssignment `gorm:"foreignKey:CaseID" json:"assignments,omitempty"`
	Activities  []CaseActivity   `gorm:"foreignKey:CaseID" json:"activities,omitempty"`
}

// CaseAssignment is one immutable assignment event. Reassignment appends a
// new row; existing rows are never updated.
type CaseAssignment struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID       uuid.UUID        `gorm:"type:uuid;not null;index" json:"case_id"`
	AssignedToID uuid.UUID        `gorm:"type:uuid;not null;index" json:"assigned_to_id"`
	AssignedByID uuid.UUID        `gorm:"type:uuid;not null" json:"assigned_by_id"`
	Status       AssignmentStatus `gorm:"type:varchar(20);not null" json:"status"`
	Notes        string           `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time        `json:"created_at"`
}

// CaseActivity is an append-only timeline entry for a case.
type CaseActivity struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CaseID      uuid.UUID    `gorm:"type:uuid;not null;index" json:"case_id"`
	UserID      uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_id"`
	Title       string       `gorm:"not null" json:"title"`
	Description string       `gorm:"type:text" json:"description"`
	Type        ActivityType `gorm:"type:varchar(30);not null" json:"type"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ServiceRequest is a client's request for legal aid, a paid service or a
// consultation. APPROVED is only ever computed, never set by a caller.
type ServiceRequest struct {
	ID               uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"client_id"`
	AssignedLawyerID *uuid.UUID    `gorm:"type:uuid;index" json:"assigned_lawyer_id"`
	ServiceType      ServiceType   `gorm:"type:varchar(20);not null" json:"service_type"`
	Status           RequestStatus `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Title            string        `gorm:"not null" json:"title"`
	Description      string        `gorm:"type:text" json:"description"`
	FeeCents         int           `gorm:"not null;default:0" json:"fee_cents"`
	ApprovedAt       *time.Time    `json:"approved_at"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`

	IncomeProof   *IncomeProof         `gorm:"foreignKey:ServiceRequestID" json:"income_proof,omitempty"`
	Payment       *ServicePayment      `gorm:"foreignKey:ServiceRequestID" json:"payment,omitempty"`
	Documents     []ServiceDocument    `gorm:"foreignKey:ServiceRequestID" json:"documents,omitempty"`
	Verifications []VerificationRecord `gorm:"foreignKey:ServiceRequestID" json:"verifications,omitempty"`
}

type IncomeProof struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ServiceRequestID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"service_request_id"`
	AnnualIncome     float64    `gorm:"type:numeric(14,2);not null" json:"annual_income"`
	Verified         bool       `gorm:"not null;default:false" json:"verified"`
	VerifiedAt       *time.Time `json:"verified_at"`
	Notes            string     `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type ServicePayment struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ServiceRequestID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"service_request_id"`
	AmountCents      int        `gorm:"not null" json:"amount_cents"` // cents avoid float rounding
	Status           PayStatus  `gorm:"type:varchar(20);not null;default:'PENDING'" json:"status"`
	Verified         bool       `gorm:"not null;default:false" json:"verified"`
	VerifiedAt       *time.Time `json:"verified_at"`
	ProviderRef      *string    `gorm:"uniqueIndex" json:"provider_ref,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type ServiceDocument struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ServiceRequestID uuid.UUID  `gorm:"type:uuid;not null;index" json:"service_request_id"`
	Key              string     `gorm:"not null" json:"-"`
	Mime             string     `gorm:"not null" json:"mime"`
	Size             int64      `gorm:"not null" json:"size"`
	OriginalName     string     `json:"original_name"`
	Verified         bool       `gorm:"not null;default:false" json:"verified"`
	VerifiedAt       *time.Time `json:"verified_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// VerificationRecord is an append-only audit entry for one verification signal.
type VerificationRecord struct {
	ID               uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ServiceRequestID uuid.UUID          `gorm:"type:uuid;not null;index" json:"service_request_id"`
	Type             VerificationType   `gorm:"type:varchar(20);not null" json:"type"`
	Status           VerificationStatus `gorm:"type:varchar(20);not null" json:"status"`
	SubjectID        *uuid.UUID         `gorm:"type:uuid" json:"subject_id,omitempty"` // document id for DOCUMENT records
	Notes            string             `gorm:"type:text" json:"notes"`
	VerifiedByID     *uuid.UUID         `gorm:"type:uuid" json:"verified_by_id"` // nil for processor callbacks
	CreatedAt        time.Time          `json:"created_at"`
}

// Suspension is a historical record, one per suspension event, never deleted.
type Suspension struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	LawyerID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"lawyer_id"`
	Reason        string     `gorm:"not null" json:"reason"`
	Notes         string     `gorm:"type:text" json:"notes"`
	DurationDays  int        `gorm:"not null;default:0" json:"duration_days"` // 0 = indefinite
	EndsAt        *time.Time `json:"ends_at"`
	SuspendedByID uuid.UUID  `gorm:"type:uuid;not null" json:"suspended_by_id"`
	CreatedAt     time.Time  `json:"created_at"`
}

// All lists every entity for migrations and test truncation.
func All() []any {
	return []any{
		&User{}, &Case{}, &CaseAssignment{}, &CaseActivity{},
		&ServiceRequest{}, &IncomeProof{}, &ServicePayment{}, &ServiceDocument{},
		&VerificationRecord{}, &Suspension{},
	}
}
