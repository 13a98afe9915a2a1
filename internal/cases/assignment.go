package cases

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

// Manager owns every write that changes who is responsible for a case. Each
// operation is a single transaction covering the case row, the assignment
// history and the activity timeline.
type Manager struct {
	db     *gorm.DB
	notify notify.Notifier
	log    *zap.Logger
}

func NewManager(db *gorm.DB, n notify.Notifier, log *zap.Logger) *Manager {
	return &Manager{db: db, notify: n, log: log}
}

/* ============================== Inputs ================================== */

type AssignInput struct {
	CaseID            uuid.UUID
	LawyerID          uuid.UUID
	PerformedBy       uuid.UUID
	AllowReassignment bool
	Notes             string
}

// CasePatch holds optional field changes. Status may only move a case to a
// terminal state; ACTIVE and PENDING_REASSIGNMENT are owned by assignment
// and suspension.
type CasePatch struct {
	Title       *string
	Category    *string
	Description *string
	Priority    *models.CasePriority
	Status      *models.CaseStatus
}

func (p CasePatch) columns() map[string]any {
	cols := map[string]any{}
	if p.Title != nil {
		cols["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Category != nil {
		cols["category"] = strings.TrimSpace(*p.Category)
	}
	if p.Description != nil {
		cols["description"] = strings.TrimSpace(*p.Description)
	}
	if p.Priority != nil {
		cols["priority"] = *p.Priority
	}
	if p.Status != nil {
		cols["status"] = *p.Status
	}
	return cols
}

// CaseUpdate is either a PlainUpdate or a ReassignmentUpdate, passed by value
// or by pointer.
type CaseUpdate interface {
	patch() CasePatch
}

// PlainUpdate changes case details only.
type PlainUpdate struct {
	Patch CasePatch
}

// ReassignmentUpdate changes case details and points the case at LawyerID.
// When LawyerID equals the current lawyer it behaves like a PlainUpdate.
type ReassignmentUpdate struct {
	Patch    CasePatch
	LawyerID uuid.UUID
	Notes    string
}

func (u PlainUpdate) patch() CasePatch        { return u.Patch }
func (u ReassignmentUpdate) patch() CasePatch { return u.Patch }

// unpack splits an update into its patch and, for reassignments, the target.
func unpack(upd CaseUpdate) (CasePatch, *ReassignmentUpdate, error) {
	switch u := upd.(type) {
	case PlainUpdate:
		return u.Patch, nil, nil
	case *PlainUpdate:
		if u != nil {
			return u.Patch, nil, nil
		}
	case ReassignmentUpdate:
		return u.Patch, &u, nil
	case *ReassignmentUpdate:
		if u != nil {
			return u.Patch, u, nil
		}
	}
	return CasePatch{}, nil, apperr.Validation("nothing to update")
}

/* ============================== Create ================================== */

type CreateInput struct {
	ClientID    uuid.UUID
	Title       string
	Category    string
	Description string
	Priority    models.CasePriority
}

// Create opens a PENDING case with no lawyer.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*models.Case, error) {
	const op = "cases.create"
	if in.Priority == "" {
		in.Priority = models.PriorityMedium
	}
	cs := models.Case{
		ClientID:    in.ClientID,
		Title:       strings.TrimSpace(in.Title),
		Category:    strings.TrimSpace(in.Category),
		Description: strings.TrimSpace(in.Description),
		Priority:    in.Priority,
		Status:      models.CasePending,
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&cs).Error; err != nil {
			return apperr.Store(op, err)
		}
		if err := utils.LogCaseActivity(tx, cs.ID, in.ClientID, models.ActivityUpdate,
			"Case created", "Case was opened and is waiting for a lawyer"); err != nil {
			return apperr.Store(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStore(op, err)
	}
	return &cs, nil
}

/* ============================== Assign ================================== */

// Assign points a case at a lawyer and makes it ACTIVE. A case that already
// has a lawyer is only reassigned when AllowReassignment is set.
func (m *Manager) Assign(ctx context.Context, in AssignInput) (*models.Case, error) {
	const op = "cases.assign"
	switch {
	case in.CaseID == uuid.Nil:
		return nil, apperr.Validation("case_id is required")
	case in.LawyerID == uuid.Nil:
		return nil, apperr.Validation("lawyer_id is required")
	case in.PerformedBy == uuid.Nil:
		return nil, apperr.Validation("acting user is required")
	}

	var (
		out        models.Case
		previous   *uuid.UUID
		reassigned bool
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cs, err := lockCase(tx, op, in.CaseID)
		if err != nil {
			return err
		}
		if cs.LawyerID != nil && !in.AllowReassignment {
			return apperr.Conflict("case already has a lawyer; set reassignment to replace them")
		}
		if cs.Status.Terminal() {
			return apperr.Conflict(fmt.Sprintf("case is %s", strings.ToLower(string(cs.Status))))
		}
		if err := requireAssignableLawyer(tx, op, in.LawyerID); err != nil {
			return err
		}

		previous = cs.LawyerID
		reassigned = cs.LawyerID != nil
		now := time.Now().UTC()

		if err := tx.Model(&models.Case{}).Where("id = ?", cs.ID).Updates(map[string]any{
			"lawyer_id":  in.LawyerID,
			"status":     models.CaseActive,
			"updated_at": now,
		}).Error; err != nil {
			return apperr.Store(op, err)
		}
		if err := appendAssignment(tx, op, cs.ID, in.LawyerID, in.PerformedBy, reassigned, in.Notes); err != nil {
			return err
		}

		title, desc := "Lawyer assigned", "Case was assigned to a lawyer"
		if reassigned {
			title, desc = "Lawyer reassigned", "Case was reassigned to a new lawyer"
		}
		if err := utils.LogCaseActivity(tx, cs.ID, in.PerformedBy, models.ActivityAssignment, title, desc); err != nil {
			return apperr.Store(op, err)
		}

		return reload(tx, op, cs.ID, &out)
	})
	if err != nil {
		return nil, wrapStore(op, err)
	}

	m.log.Info("case assigned",
		zap.String("case_id", out.ID.String()),
		zap.String("lawyer_id", in.LawyerID.String()),
		zap.Bool("reassigned", reassigned),
	)
	m.notifyAssignment(&out, previous)
	return &out, nil
}

/* ============================== Update ================================== */

// Update applies field changes. A ReassignmentUpdate that names a different
// lawyer is an implicit (re)assignment: it appends a CaseAssignment and the
// activity is typed ASSIGNMENT. Either way exactly one activity is written.
// The status becomes ACTIVE only when the case had no lawyer before.
func (m *Manager) Update(ctx context.Context, caseID, performedBy uuid.UUID, upd CaseUpdate) (*models.Case, error) {
	const op = "cases.update"
	if caseID == uuid.Nil {
		return nil, apperr.Validation("case_id is required")
	}
	if performedBy == uuid.Nil {
		return nil, apperr.Validation("acting user is required")
	}
	patch, ru, err := unpack(upd)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil && !patch.Status.Terminal() {
		return nil, apperr.Validation("status can only be set to RESOLVED or CLOSED")
	}

	var (
		out           models.Case
		previous      *uuid.UUID
		lawyerChanged bool
	)
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cs, err := lockCase(tx, op, caseID)
		if err != nil {
			return err
		}

		cols := patch.columns()
		if ru != nil && ru.LawyerID != uuid.Nil && (cs.LawyerID == nil || *cs.LawyerID != ru.LawyerID) {
			lawyerChanged = true
		}

		if lawyerChanged {
			if patch.Status != nil {
				return apperr.Validation("status and lawyer cannot change in the same update")
			}
			if cs.Status.Terminal() {
				return apperr.Conflict(fmt.Sprintf("case is %s", strings.ToLower(string(cs.Status))))
			}
			if err := requireAssignableLawyer(tx, op, ru.LawyerID); err != nil {
				return err
			}
			cols["lawyer_id"] = ru.LawyerID
			// A flagged case keeps PENDING_REASSIGNMENT; only Assign reactivates it
			if cs.LawyerID == nil {
				cols["status"] = models.CaseActive
			}
		}
		if patch.Status != nil && *patch.Status == models.CaseResolved && cs.LawyerID == nil {
			return apperr.Conflict("a case without a lawyer cannot be resolved")
		}
		if len(cols) == 0 {
			return apperr.Validation("nothing to update")
		}

		previous = cs.LawyerID
		cols["updated_at"] = time.Now().UTC()
		if err := tx.Model(&models.Case{}).Where("id = ?", cs.ID).Updates(cols).Error; err != nil {
			return apperr.Store(op, err)
		}

		if lawyerChanged {
			if err := appendAssignment(tx, op, cs.ID, ru.LawyerID, performedBy, cs.LawyerID != nil, ru.Notes); err != nil {
				return err
			}
			if err := utils.LogCaseActivity(tx, cs.ID, performedBy, models.ActivityAssignment,
				"Case updated", "Case was assigned to a new lawyer"); err != nil {
				return apperr.Store(op, err)
			}
		} else {
			if err := utils.LogCaseActivity(tx, cs.ID, performedBy, models.ActivityUpdate,
				"Case updated", "Case details were updated"); err != nil {
				return apperr.Store(op, err)
			}
		}

		return reload(tx, op, cs.ID, &out)
	})
	if err != nil {
		return nil, wrapStore(op, err)
	}

	if lawyerChanged {
		m.log.Info("case reassigned through update",
			zap.String("case_id", out.ID.String()),
			zap.String("lawyer_id", out.LawyerID.String()),
		)
		m.notifyAssignment(&out, previous)
	}
	return &out, nil
}

/* ============================== Reads =================================== */

// Get loads a case with its assignment history and timeline, newest first.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	var cs models.Case
	err := m.db.WithContext(ctx).
		Preload("Assignments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Preload("Activities", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		First(&cs, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("case not found")
		}
		return nil, apperr.Store("cases.get", err)
	}
	return &cs, nil
}

/* ============================== Helpers ================================= */

// lockCase reads the case row FOR UPDATE so concurrent assignments serialize.
func lockCase(tx *gorm.DB, op string, id uuid.UUID) (*models.Case, error) {
	var cs models.Case
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cs, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("case not found")
		}
		return nil, apperr.Store(op, err)
	}
	return &cs, nil
}

// requireAssignableLawyer reads the lawyer FOR SHARE. A concurrent suspension
// locks the same row FOR UPDATE, so it waits for this assignment to commit and
// then sees the case in its ACTIVE scan.
func requireAssignableLawyer(tx *gorm.DB, op string, lawyerID uuid.UUID) error {
	var u models.User
	err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
		Select("id", "role", "status").
		First(&u, "id = ?", lawyerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("lawyer not found")
		}
		return apperr.Store(op, err)
	}
	if u.Role != models.RoleLawyer {
		return apperr.NotFound("lawyer not found")
	}
	if u.Status == models.UserSuspended {
		return apperr.Conflict("lawyer is suspended")
	}
	return nil
}

func appendAssignment(tx *gorm.DB, op string, caseID, lawyerID, by uuid.UUID, reassigned bool, notes string) error {
	note := "Case assigned to lawyer"
	if reassigned {
		note = "Case reassigned to a new lawyer"
	}
	if extra := sanitize.Notes(notes); extra != "" {
		note += ": " + extra
	}
	err := tx.Create(&models.CaseAssignment{
		CaseID:       caseID,
		AssignedToID: lawyerID,
		AssignedByID: by,
		Status:       models.AssignmentAccepted,
		Notes:        note,
		CreatedAt:    time.Now().UTC(),
	}).Error
	if err != nil {
		return apperr.Store(op, err)
	}
	return nil
}

func reload(tx *gorm.DB, op string, id uuid.UUID, out *models.Case) error {
	if err := tx.First(out, "id = ?", id).Error; err != nil {
		return apperr.Store(op, err)
	}
	return nil
}

// wrapStore leaves domain errors alone and classifies anything else (e.g. a
// failed COMMIT) as a store failure.
func wrapStore(op string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Store(op, err)
}

func (m *Manager) notifyAssignment(cs *models.Case, previous *uuid.UUID) {
	if cs.LawyerID == nil {
		return
	}
	msgs := []notify.Message{
		{
			UserID:  *cs.LawyerID,
			Subject: "New case assigned",
			Body:    fmt.Sprintf("You have been assigned to case %q.", cs.Title),
		},
		{
			UserID:  cs.ClientID,
			Subject: "A lawyer is handling your case",
			Body:    fmt.Sprintf("A lawyer has been assigned to your case %q.", cs.Title),
		},
	}
	if previous != nil && *previous != *cs.LawyerID {
		msgs = append(msgs, notify.Message{
			UserID:  *previous,
			Subject: "Case reassigned",
			Body:    fmt.Sprintf("Case %q has been reassigned to another lawyer.", cs.Title),
		})
	}
	m.notify.Notify(msgs...)
}
