package suspensions

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// Coordinator suspends lawyers and flags their active caseload for
// reassignment in one transaction.
type Coordinator struct {
	db     *gorm.DB
	notify notify.Notifier
	log    *zap.Logger
}

func NewCoordinator(db *gorm.DB, n notify.Notifier, log *zap.Logger) *Coordinator {
	return &Coordinator{db: db, notify: n, log: log}
}

type SuspendInput struct {
	LawyerID     uuid.UUID
	Reason       string
	DurationDays int // 0 means until reinstated
	Notes        string
	SuspendedBy  uuid.UUID
}

// Result is the suspended lawyer together with the cases the suspension
// moved to PENDING_REASSIGNMENT.
type Result struct {
	Lawyer       *models.User       `json:"lawyer"`
	Suspension   *models.Suspension `json:"suspension"`
	FlaggedCases []uuid.UUID        `json:"flagged_cases"`
	// AlreadySuspended is true when the lawyer was suspended before this call
	// and nothing was written.
	AlreadySuspended bool `json:"already_suspended"`
}

// Suspend marks the lawyer SUSPENDED, records the suspension and moves every
// ACTIVE case pointing at them to PENDING_REASSIGNMENT. The cases keep their
// lawyer_id. Nothing is written unless all of it is. Suspending a lawyer who is
// already suspended returns the current suspension and changes nothing.
func (co *Coordinator) Suspend(ctx context.Context, in SuspendInput) (*Result, error) {
	const op = "suspensions.suspend"
	reason := strings.TrimSpace(in.Reason)
	switch {
	case in.LawyerID == uuid.Nil:
		return nil, apperr.Validation("lawyer_id is required")
	case in.SuspendedBy == uuid.Nil:
		return nil, apperr.Validation("acting user is required")
	case reason == "":
		return nil, apperr.Validation("reason is required")
	case in.DurationDays < 0:
		return nil, apperr.Validation("duration_days must not be negative")
	}

	var (
		out     Result
		clients []uuid.UUID
	)
	err := co.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lawyer, err := lockLawyer(tx, op, in.LawyerID)
		if err != nil {
			return err
		}
		if lawyer.Status == models.UserSuspended {
			var current models.Suspension
			if err := tx.Where("lawyer_id = ?", lawyer.ID).
				Order("created_at DESC").
				Limit(1).
				Find(&current).Error; err != nil {
				return apperr.Store(op, err)
			}
			out = Result{Lawyer: lawyer, FlaggedCases: []uuid.UUID{}, AlreadySuspended: true}
			if current.ID != uuid.Nil {
				out.Suspension = &current
			}
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.User{}).Where("id = ?", lawyer.ID).Updates(map[string]any{
			"status":     models.UserSuspended,
			"updated_at": now,
		}).Error; err != nil {
			return apperr.Store(op, err)
		}
		lawyer.Status, lawyer.UpdatedAt = models.UserSuspended, now

		susp := models.Suspension{
			LawyerID:      lawyer.ID,
			Reason:        sanitize.Summary(reason, 255),
			Notes:         sanitize.Notes(in.Notes),
			DurationDays:  in.DurationDays,
			SuspendedByID: in.SuspendedBy,
			CreatedAt:     now,
		}
		if in.DurationDays > 0 {
			ends := now.AddDate(0, 0, in.DurationDays)
			susp.EndsAt = &ends
		}
		if err := tx.Create(&susp).Error; err != nil {
			return apperr.Store(op, err)
		}

		// Lock the caseload so a concurrent assignment cannot slip in between
		// the select and the bulk update
		var active []models.Case
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "client_id").
			Where("lawyer_id = ? AND status = ?", lawyer.ID, models.CaseActive).
			Order("created_at ASC").
			Find(&active).Error; err != nil {
			return apperr.Store(op, err)
		}

		ids := make([]uuid.UUID, 0, len(active))
		for _, cs := range active {
			ids = append(ids, cs.ID)
			clients = append(clients, cs.ClientID)
		}
		if len(ids) > 0 {
			if err := tx.Model(&models.Case{}).Where("id IN ?", ids).Updates(map[string]any{
				"status":     models.CasePendingReassignment,
				"updated_at": now,
			}).Error; err != nil {
				return apperr.Store(op, err)
			}
			for _, id := range ids {
				if err := utils.LogCaseActivity(tx, id, in.SuspendedBy, models.ActivityStatusChange,
					"Lawyer suspended", "Case needs reassignment because the assigned lawyer was suspended"); err != nil {
					return apperr.Store(op, err)
				}
			}
		}

		out = Result{Lawyer: lawyer, Suspension: &susp, FlaggedCases: ids}
		return nil
	})
	if err != nil {
		return nil, wrapStore(op, err)
	}

	if out.AlreadySuspended {
		co.log.Info("lawyer already suspended", zap.String("lawyer_id", in.LawyerID.String()))
		return &out, nil
	}

	co.log.Info("lawyer suspended",
		zap.String("lawyer_id", in.LawyerID.String()),
		zap.Int("flagged_cases", len(out.FlaggedCases)),
		zap.Int("duration_days", in.DurationDays),
	)
	co.notifySuspension(&out, clients)
	return &out, nil
}

// Reinstate returns a suspended lawyer to ACTIVE. Cases flagged by the
// suspension stay PENDING_REASSIGNMENT until a coordinator reassigns them.
func (co *Coordinator) Reinstate(ctx context.Context, lawyerID, performedBy uuid.UUID) (*models.User, error) {
	const op = "suspensions.reinstate"
	if lawyerID == uuid.Nil {
		return nil, apperr.Validation("lawyer_id is required")
	}

	var lawyer *models.User
	err := co.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := lockLawyer(tx, op, lawyerID)
		if err != nil {
			return err
		}
		if u.Status != models.UserSuspended {
			return apperr.Conflict("lawyer is not suspended")
		}
		now := time.Now().UTC()
		if err := tx.Model(&models.User{}).Where("id = ?", u.ID).Updates(map[string]any{
			"status":     models.UserActive,
			"updated_at": now,
		}).Error; err != nil {
			return apperr.Store(op, err)
		}
		u.Status, u.UpdatedAt = models.UserActive, now
		lawyer = u
		return nil
	})
	if err != nil {
		return nil, wrapStore(op, err)
	}

	co.log.Info("lawyer reinstated",
		zap.String("lawyer_id", lawyerID.String()),
		zap.String("by", performedBy.String()),
	)
	co.notify.Notify(notify.Message{
		UserID:  lawyerID,
		Subject: "Your account was reinstated",
		Body:    "Your lawyer account is active again.",
	})
	return lawyer, nil
}

// History lists a lawyer's suspensions, newest first.
func (co *Coordinator) History(ctx context.Context, lawyerID uuid.UUID) ([]models.Suspension, error) {
	rows := []models.Suspension{}
	if err := co.db.WithContext(ctx).
		Where("lawyer_id = ?", lawyerID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, apperr.Store("suspensions.history", err)
	}
	return rows, nil
}

func lockLawyer(tx *gorm.DB, op string, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&u, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("lawyer not found")
		}
		return nil, apperr.Store(op, err)
	}
	if u.Role != models.RoleLawyer {
		return nil, apperr.NotFound("lawyer not found")
	}
	return &u, nil
}

func wrapStore(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Store(op, err)
}

func (co *Coordinator) notifySuspension(r *Result, clients []uuid.UUID) {
	msgs := []notify.Message{{
		UserID:  r.Lawyer.ID,
		Subject: "Your account was suspended",
		Body:    fmt.Sprintf("Your lawyer account has been suspended. Reason: %s", r.Suspension.Reason),
	}}
	seen := map[uuid.UUID]bool{}
	for _, id := range clients {
		if seen[id] {
			continue
		}
		seen[id] = true
		msgs = append(msgs, notify.Message{
			UserID:  id,
			Subject: "Your case is being reassigned",
			Body:    "The lawyer on your case is no longer available. A coordinator will assign a new lawyer shortly.",
		})
	}
	co.notify.Notify(msgs...)
}
