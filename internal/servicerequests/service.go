package servicerequests

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-aid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

// Intake handles the client side of a service request: opening it and
// supplying the evidence the Gate later verifies.
type Intake struct {
	db *gorm.DB
}

func NewIntake(db *gorm.DB) *Intake { return &Intake{db: db} }

type CreateInput struct {
	ClientID    uuid.UUID
	ServiceType models.ServiceType
	Title       string
	Description string
	FeeCents    int
}

func (s *Intake) Create(ctx context.Context, in CreateInput) (*models.ServiceRequest, error) {
	switch in.ServiceType {
	case models.ServicePaid:
		if in.FeeCents <= 0 {
			return nil, apperr.Validation("fee_cents must be positive for paid services")
		}
	case models.ServiceLegalAid, models.ServiceConsultation:
	default:
		return nil, apperr.Validation("unknown service type")
	}
	req := models.ServiceRequest{
		ClientID:    in.ClientID,
		ServiceType: in.ServiceType,
		Status:      models.RequestPending,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		FeeCents:    in.FeeCents,
	}
	if err := s.db.WithContext(ctx).Create(&req).Error; err != nil {
		return nil, apperr.Store("servicerequests.create", err)
	}
	return &req, nil
}

// SubmitIncomeProof creates or replaces the income declaration of a pending
// LEGAL_AID request. A verified proof can no longer be replaced.
func (s *Intake) SubmitIncomeProof(ctx context.Context, requestID, clientID uuid.UUID, annualIncome float64) (*models.IncomeProof, error) {
	const op = "servicerequests.submit_income"
	if annualIncome < 0 {
		return nil, apperr.Validation("annual_income must not be negative")
	}

	var proof models.IncomeProof
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockOwnedRequest(tx, op, requestID, clientID)
		if err != nil {
			return err
		}
		if req.ServiceType != models.ServiceLegalAid {
			return apperr.Validation("income proof only applies to LEGAL_AID requests")
		}
		if req.Status != models.RequestPending {
			return apperr.Conflict("service request is no longer pending")
		}

		now := time.Now().UTC()
		err = tx.First(&proof, "service_request_id = ?", req.ID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			proof = models.IncomeProof{
				ServiceRequestID: req.ID,
				AnnualIncome:     annualIncome,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := tx.Create(&proof).Error; err != nil {
				return apperr.Store(op, err)
			}
		case err == nil:
			if proof.Verified {
				return apperr.Conflict("income proof is already verified")
			}
			proof.AnnualIncome, proof.UpdatedAt = annualIncome, now
			if err := tx.Model(&proof).Updates(map[string]any{
				"annual_income": annualIncome,
				"updated_at":    now,
			}).Error; err != nil {
				return apperr.Store(op, err)
			}
		default:
			return apperr.Store(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStore(op, err)
	}
	return &proof, nil
}

type DocumentInput struct {
	RequestID    uuid.UUID
	ClientID     uuid.UUID
	Key          string
	Mime         string
	Size         int64
	OriginalName string
}

// AddDocument records an uploaded file as an unverified document.
func (s *Intake) AddDocument(ctx context.Context, in DocumentInput) (*models.ServiceDocument, error) {
	const op = "servicerequests.add_document"
	var doc models.ServiceDocument
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockOwnedRequest(tx, op, in.RequestID, in.ClientID)
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return apperr.Conflict("service request is no longer pending")
		}
		doc = models.ServiceDocument{
			ServiceRequestID: req.ID,
			Key:              in.Key,
			Mime:             in.Mime,
			Size:             in.Size,
			OriginalName:     in.OriginalName,
			CreatedAt:        time.Now().UTC(),
		}
		if err := tx.Create(&doc).Error; err != nil {
			return apperr.Store(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStore(op, err)
	}
	return &doc, nil
}

// Get loads a request with every signal and its verification history.
func (s *Intake) Get(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := s.db.WithContext(ctx).
		Preload("IncomeProof").
		Preload("Payment").
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Verifications", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("service request not found")
		}
		return nil, apperr.Store("servicerequests.get", err)
	}
	return &req, nil
}

// Document loads a single document of a request.
func (s *Intake) Document(ctx context.Context, requestID, documentID uuid.UUID) (*models.ServiceDocument, error) {
	var doc models.ServiceDocument
	err := s.db.WithContext(ctx).
		First(&doc, "id = ? AND service_request_id = ?", documentID, requestID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("document not found")
		}
		return nil, apperr.Store("servicerequests.document", err)
	}
	return &doc, nil
}

// lockOwnedRequest reads a request FOR UPDATE. Requests of other clients are
// reported as missing.
func lockOwnedRequest(tx *gorm.DB, op string, id, clientID uuid.UUID) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&req, "id = ? AND client_id = ?", id, clientID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("service request not found")
		}
		return nil, apperr.Store(op, err)
	}
	return &req, nil
}
