package servicerequests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-aid-backend/internal/notify"
	"github.com/aldoetobex/legal-aid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
	"github.com/aldoetobex/legal-aid-backend/pkg/sanitize"
	"github.com/aldoetobex/legal-aid-backend/pkg/utils"
)

// Gate records verification signals for service requests. Every verify call
// locks the request row, writes its own signal, then re-runs Evaluate over
// all signals in the same transaction. The last signal to commit therefore
// always sees the others, whatever order they arrived in.
type Gate struct {
	db        *gorm.DB
	threshold *float64
	notify    notify.Notifier
	log       *zap.Logger
}

// NewGate builds the gate. A nil threshold disables legal-aid fast-path
// approval; the aggregate rule still applies.
func NewGate(db *gorm.DB, threshold *float64, n notify.Notifier, log *zap.Logger) *Gate {
	return &Gate{db: db, threshold: threshold, notify: n, log: log}
}

type VerifyDocumentInput struct {
	RequestID  uuid.UUID
	DocumentID uuid.UUID
	Verified   bool
	Notes      string
	VerifiedBy uuid.UUID
}

type VerifyIncomeInput struct {
	RequestID  uuid.UUID
	Verified   bool
	Notes      string
	VerifiedBy uuid.UUID
}

type VerifyPaymentInput struct {
	RequestID uuid.UUID
	// VerifiedBy is nil when the payment processor reports the payment.
	VerifiedBy  *uuid.UUID
	ProviderRef string
}

type DocumentResult struct {
	Document *models.ServiceDocument `json:"document"`
	Request  *models.ServiceRequest  `json:"request"`
}

type IncomeResult struct {
	IncomeProof *models.IncomeProof    `json:"income_proof"`
	Request     *models.ServiceRequest `json:"request"`
}

type PaymentResult struct {
	Payment *models.ServicePayment `json:"payment"`
	Request *models.ServiceRequest `json:"request"`
	// AlreadyVerified is true when the call only re-affirmed an earlier verification.
	AlreadyVerified bool `json:"already_verified"`
}

/* =========================== VerifyDocument ============================= */

func (g *Gate) VerifyDocument(ctx context.Context, in VerifyDocumentInput) (*DocumentResult, error) {
	const op = "servicerequests.verify_document"
	if in.RequestID == uuid.Nil || in.DocumentID == uuid.Nil {
		return nil, apperr.Validation("service request id and document id are required")
	}

	var (
		out      DocumentResult
		decision Decision
		before   models.RequestStatus
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, op, in.RequestID)
		if err != nil {
			return err
		}
		before = req.Status

		var doc models.ServiceDocument
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&doc, "id = ? AND service_request_id = ?", in.DocumentID, req.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("document not found")
			}
			return apperr.Store(op, err)
		}

		var verifiedAt *time.Time
		if in.Verified {
			now := time.Now().UTC()
			verifiedAt = &now
		}
		if err := tx.Model(&doc).Updates(map[string]any{
			"verified":    in.Verified,
			"verified_at": verifiedAt,
		}).Error; err != nil {
			return apperr.Store(op, err)
		}
		if err := utils.LogVerification(tx, req.ID, models.VerifyDocumentType, verificationStatus(in.Verified),
			&doc.ID, &in.VerifiedBy, sanitize.Notes(in.Notes)); err != nil {
			return apperr.Store(op, err)
		}

		if decision, err = g.reevaluate(tx, op, req.ID); err != nil {
			return err
		}
		doc.Verified, doc.VerifiedAt = in.Verified, verifiedAt
		out.Document = &doc
		out.Request, err = loadRequest(tx, op, req.ID)
		return err
	})
	if err != nil {
		return nil, wrapStore(op, err)
	}

	g.afterCommit(out.Request, before, decision)
	return &out, nil
}

/* ============================ VerifyIncome ============================== */

func (g *Gate) VerifyIncome(ctx context.Context, in VerifyIncomeInput) (*IncomeResult, error) {
	const op = "servicerequests.verify_income"
	if in.RequestID == uuid.Nil {
		return nil, apperr.Validation("service request id is required")
	}

	var (
		out      IncomeResult
		decision Decision
		before   models.RequestStatus
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, op, in.RequestID)
		if err != nil {
			return err
		}
		before = req.Status

		var proof models.IncomeProof
		if err := tx.First(&proof, "service_request_id = ?", req.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("income proof not found")
			}
			return apperr.Store(op, err)
		}

		now := time.Now().UTC()
		var verifiedAt *time.Time
		if in.Verified {
			verifiedAt = &now
		}
		notes := sanitize.Notes(in.Notes)
		if err := tx.Model(&proof).Updates(map[string]any{
			"verified":    in.Verified,
			"verified_at": verifiedAt,
			"notes":       notes,
			"updated_at":  now,
		}).Error; err != nil {
			return apperr.Store(op, err)
		}
		if err := utils.LogVerification(tx, req.ID, models.VerifyIncomeType, verificationStatus(in.Verified),
			&proof.ID, &in.VerifiedBy, notes); err != nil {
			return apperr.Store(op, err)
		}

		if in.Verified && g.threshold == nil && req.ServiceType == models.ServiceLegalAid {
			g.log.Warn("legal-aid income threshold not configured; fast-path approval skipped",
				zap.String("service_request_id", req.ID.String()))
		}
		if decision, err = g.reevaluate(tx, op, req.ID); err != nil {
			return err
		}
		proof.Verified, proof.VerifiedAt, proof.Notes, proof.UpdatedAt = in.Verified, verifiedAt, notes, now
		out.IncomeProof = &proof
		out.Request, err = loadRequest(tx, op, req.ID)
		return err
	})
	if err != nil {
		return nil, wrapStore(op, err)
	}

	g.afterCommit(out.Request, before, decision)
	return &out, nil
}

/* ============================ VerifyPayment ============================= */

// VerifyPayment marks the request's payment as paid and verified. Calling it
// again on a verified payment writes no new verification record.
func (g *Gate) VerifyPayment(ctx context.Context, in VerifyPaymentInput) (*PaymentResult, error) {
	const op = "servicerequests.verify_payment"
	if in.RequestID == uuid.Nil {
		return nil, apperr.Validation("service request id is required")
	}

	var (
		out      PaymentResult
		decision Decision
		before   models.RequestStatus
	)
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := lockRequest(tx, op, in.RequestID)
		if err != nil {
			return err
		}
		before = req.Status

		var pay models.ServicePayment
		if err := tx.First(&pay, "service_request_id = ?", req.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("payment not found")
			}
			return apperr.Store(op, err)
		}

		out.AlreadyVerified = pay.Verified
		if !pay.Verified {
			now := time.Now().UTC()
			cols := map[string]any{
				"verified":    true,
				"verified_at": now,
				"status":      models.PayPaid,
				"updated_at":  now,
			}
			if in.ProviderRef != "" {
				cols["provider_ref"] = in.ProviderRef
			}
			if err := tx.Model(&pay).Updates(cols).Error; err != nil {
				return apperr.Store(op, err)
			}
			if err := utils.LogVerification(tx, req.ID, models.VerifyPaymentType, models.VerificationVerified,
				&pay.ID, in.VerifiedBy, ""); err != nil {
				return apperr.Store(op, err)
			}
		}

		if decision, err = g.reevaluate(tx, op, req.ID); err != nil {
			return err
		}
		if err := tx.First(&pay, "id = ?", pay.ID).Error; err != nil {
			return apperr.Store(op, err)
		}
		out.Payment = &pay
		out.Request, err = loadRequest(tx, op, req.ID)
		return err
	})
	if err != nil {
		return nil, wrapStore(op, err)
	}

	g.afterCommit(out.Request, before, decision)
	return &out, nil
}

/* ============================== Helpers ================================= */

// reevaluate runs the approval rule over the rows as they stand inside tx and
// applies a promotion if there is one.
func (g *Gate) reevaluate(tx *gorm.DB, op string, requestID uuid.UUID) (Decision, error) {
	req, err := loadRequest(tx, op, requestID)
	if err != nil {
		return Decision{}, err
	}
	d := Evaluate(snapshotOf(req), g.threshold)
	if !d.Promoted(req.Status) {
		return d, nil
	}
	now := time.Now().UTC()
	if err := tx.Model(&models.ServiceRequest{}).Where("id = ?", req.ID).Updates(map[string]any{
		"status":      models.RequestApproved,
		"approved_at": now,
		"updated_at":  now,
	}).Error; err != nil {
		return Decision{}, apperr.Store(op, err)
	}
	return d, nil
}

func (g *Gate) afterCommit(req *models.ServiceRequest, before models.RequestStatus, d Decision) {
	if !d.Promoted(before) {
		return
	}
	g.log.Info("service request approved",
		zap.String("service_request_id", req.ID.String()),
		zap.String("reason", string(d.Reason)),
	)
	g.notify.Notify(notify.Message{
		UserID:  req.ClientID,
		Subject: "Your service request was approved",
		Body:    fmt.Sprintf("Your request %q has been approved.", req.Title),
	})
}

func lockRequest(tx *gorm.DB, op string, id uuid.UUID) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("service request not found")
		}
		return nil, apperr.Store(op, err)
	}
	return &req, nil
}

func loadRequest(db *gorm.DB, op string, id uuid.UUID) (*models.ServiceRequest, error) {
	var req models.ServiceRequest
	err := db.
		Preload("IncomeProof").
		Preload("Payment").
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("service request not found")
		}
		return nil, apperr.Store(op, err)
	}
	return &req, nil
}

func verificationStatus(ok bool) models.VerificationStatus {
	if ok {
		return models.VerificationVerified
	}
	return models.VerificationRejected
}

func wrapStore(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Store(op, err)
}
