package cases

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/internal/notify"
	"github.com/aldoetobex/legal-aid-backend/pkg/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/database"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

// openTestDB loads TEST_DATABASE_URL, opens a real Postgres connection and
// runs migrations. Tests are skipped when no database is configured.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is empty")
	}
	db, err := database.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })
	return db
}

// withTx runs fn inside a transaction that is always rolled back, so tests
// never see each other's rows.
func withTx(t *testing.T, db *gorm.DB, fn func(tx *gorm.DB)) {
	t.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		t.Fatalf("begin tx: %v", tx.Error)
	}
	defer func() {
		_ = tx.Rollback().Error
	}()
	fn(tx)
}

// injectAuth puts the auth locals into Fiber context without a real JWT.
func injectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", string(role))
		return c.Next()
	}
}

// newTestApp registers routes in a safe order for tests.
// Static paths (like /assigned) are added BEFORE parameterized ones (/:id).
func newTestApp(h *Handler, userID uuid.UUID, role models.Role) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(injectAuth(userID, role))

	app.Post("/cases", h.Create)
	app.Get("/cases/assigned", h.ListAssigned)
	app.Get("/cases/:id", h.GetDetail)
	app.Patch("/cases/:id", h.Update)
	app.Post("/cases/:id/assign", h.Assign)
	app.Get("/cases/:id/activities", h.ListActivities)
	return app
}

// recorder is a Notifier that keeps every message.
type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Notify(msgs ...notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msgs...)
}

func (r *recorder) to(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.UserID == id {
			n++
		}
	}
	return n
}

func seedUser(t *testing.T, tx *gorm.DB, role models.Role, status models.UserStatus) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := tx.Create(&models.User{
		ID:     id,
		Email:  string(role) + "_" + id.String()[:8] + "@x.com",
		Role:   role,
		Status: status,
		Name:   "Test " + string(role),
	}).Error; err != nil {
		t.Fatal(err)
	}
	return id
}

// seedCase inserts a case directly, bypassing the manager.
func seedCase(t *testing.T, tx *gorm.DB, clientID uuid.UUID, lawyerID *uuid.UUID, status models.CaseStatus) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := tx.Create(&models.Case{
		ID:       id,
		ClientID: clientID,
		LawyerID: lawyerID,
		Title:    "Case " + id.String()[:6],
		Category: "Family",
		Priority: models.PriorityMedium,
		Status:   status,
	}).Error; err != nil {
		t.Fatal(err)
	}
	return id
}

func loadCase(t *testing.T, tx *gorm.DB, id uuid.UUID) models.Case {
	t.Helper()
	var cs models.Case
	if err := tx.First(&cs, "id = ?", id).Error; err != nil {
		t.Fatal(err)
	}
	return cs
}

func countRows(t *testing.T, tx *gorm.DB, model any, caseID uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := tx.Model(model).Where("case_id = ?", caseID).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

type fixture struct {
	Client, Coordinator, L1, L2 uuid.UUID
}

func seedPeople(t *testing.T, tx *gorm.DB) fixture {
	return fixture{
		Client:      seedUser(t, tx, models.RoleClient, models.UserActive),
		Coordinator: seedUser(t, tx, models.RoleCoordinator, models.UserActive),
		L1:          seedUser(t, tx, models.RoleLawyer, models.UserActive),
		L2:          seedUser(t, tx, models.RoleLawyer, models.UserActive),
	}
}

func ptr[T any](v T) *T { return &v }

// failInserts makes every INSERT of a *T fail until the test ends. Callbacks
// live on the shared config, so the hook is removed in cleanup.
func failInserts[T any](t *testing.T, db *gorm.DB) {
	t.Helper()
	name := "test:fail_insert:" + t.Name()
	err := db.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if _, ok := tx.Statement.Model.(*T); ok {
			_ = tx.AddError(errors.New("insert refused"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}
	t.Cleanup(func() { _ = db.Callback().Create().Remove(name) })
}

/* ============================================================================
   Manager
   ============================================================================ */

func Test_Create_StartsPendingWithoutLawyer(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())

		cs, err := m.Create(context.Background(), CreateInput{ClientID: f.Client, Title: " Eviction ", Category: "Housing"})
		if err != nil {
			t.Fatal(err)
		}
		if cs.Status != models.CasePending || cs.LawyerID != nil {
			t.Fatalf("want PENDING without lawyer, got %s %v", cs.Status, cs.LawyerID)
		}
		if cs.Title != "Eviction" || cs.Priority != models.PriorityMedium {
			t.Fatalf("unexpected defaults: %q %s", cs.Title, cs.Priority)
		}
		if n := countRows(t, tx, &models.CaseActivity{}, cs.ID); n != 1 {
			t.Fatalf("want 1 activity, got %d", n)
		}
	})
}

func Test_Assign_PendingCase_BecomesActive(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, nil, models.CasePending)
		rec := &recorder{}
		m := NewManager(tx, rec, zap.NewNop())

		cs, err := m.Assign(context.Background(), AssignInput{CaseID: caseID, LawyerID: f.L1, PerformedBy: f.Coordinator})
		if err != nil {
			t.Fatal(err)
		}
		if cs.Status != models.CaseActive || cs.LawyerID == nil || *cs.LawyerID != f.L1 {
			t.Fatalf("want ACTIVE with L1, got %s %v", cs.Status, cs.LawyerID)
		}

		var asg []models.CaseAssignment
		if err := tx.Where("case_id = ?", caseID).Find(&asg).Error; err != nil {
			t.Fatal(err)
		}
		if len(asg) != 1 || asg[0].Status != models.AssignmentAccepted || asg[0].AssignedByID != f.Coordinator {
			t.Fatalf("unexpected assignment rows: %#v", asg)
		}
		if strings.Contains(asg[0].Notes, "reassigned") {
			t.Fatalf("first assignment should not say reassigned: %q", asg[0].Notes)
		}

		var acts []models.CaseActivity
		if err := tx.Where("case_id = ?", caseID).Find(&acts).Error; err != nil {
			t.Fatal(err)
		}
		if len(acts) != 1 || acts[0].Type != models.ActivityAssignment {
			t.Fatalf("want one ASSIGNMENT activity, got %#v", acts)
		}
		if rec.to(f.L1) != 1 || rec.to(f.Client) != 1 {
			t.Fatalf("lawyer and client should be notified once, got %d/%d", rec.to(f.L1), rec.to(f.Client))
		}
	})
}

// An assigned case is left untouched when reassignment is not requested.
func Test_Assign_AlreadyAssigned_ConflictLeavesCaseUnchanged(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, &f.L1, models.CaseActive)
		before := loadCase(t, tx, caseID)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())

		_, err := m.Assign(context.Background(), AssignInput{CaseID: caseID, LawyerID: f.L2, PerformedBy: f.Coordinator})
		if !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("want conflict, got %v", err)
		}

		after := loadCase(t, tx, caseID)
		if *after.LawyerID != f.L1 || after.Status != models.CaseActive || !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Fatalf("case changed: %#v", after)
		}
		if n := countRows(t, tx, &models.CaseAssignment{}, caseID); n != 0 {
			t.Fatalf("no assignment rows expected, got %d", n)
		}
		if n := countRows(t, tx, &models.CaseActivity{}, caseID); n != 0 {
			t.Fatalf("no activity rows expected, got %d", n)
		}
	})
}

func Test_Assign_Reassignment_AppendsHistory(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, nil, models.CasePending)
		rec := &recorder{}
		m := NewManager(tx, rec, zap.NewNop())
		ctx := context.Background()

		if _, err := m.Assign(ctx, AssignInput{CaseID: caseID, LawyerID: f.L1, PerformedBy: f.Coordinator}); err != nil {
			t.Fatal(err)
		}
		cs, err := m.Assign(ctx, AssignInput{
			CaseID: caseID, LawyerID: f.L2, PerformedBy: f.Coordinator,
			AllowReassignment: true, Notes: "conflict of interest",
		})
		if err != nil {
			t.Fatal(err)
		}
		if *cs.LawyerID != f.L2 || cs.Status != models.CaseActive {
			t.Fatalf("want ACTIVE with L2, got %s %v", cs.Status, cs.LawyerID)
		}

		var asg []models.CaseAssignment
		if err := tx.Where("case_id = ?", caseID).Order("created_at ASC").Find(&asg).Error; err != nil {
			t.Fatal(err)
		}
		if len(asg) != 2 {
			t.Fatalf("want 2 assignment rows, got %d", len(asg))
		}
		if asg[0].AssignedToID != f.L1 || asg[1].AssignedToID != f.L2 {
			t.Fatalf("history rewritten: %#v", asg)
		}
		if !strings.Contains(asg[1].Notes, "reassigned") || !strings.Contains(asg[1].Notes, "conflict of interest") {
			t.Fatalf("reassignment note = %q", asg[1].Notes)
		}
		if n := countRows(t, tx, &models.CaseActivity{}, caseID); n != 2 {
			t.Fatalf("want one activity per assign, got %d", n)
		}
		if rec.to(f.L1) != 2 {
			t.Fatalf("previous lawyer should hear about the reassignment, got %d messages", rec.to(f.L1))
		}
	})
}

// Suspension leaves cases PENDING_REASSIGNMENT; reassignment brings them back.
func Test_Assign_PendingReassignment_ReturnsToActive(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, &f.L1, models.CasePendingReassignment)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())

		_, err := m.Assign(context.Background(), AssignInput{CaseID: caseID, LawyerID: f.L2, PerformedBy: f.Coordinator})
		if !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("want conflict without the flag, got %v", err)
		}
		cs, err := m.Assign(context.Background(), AssignInput{
			CaseID: caseID, LawyerID: f.L2, PerformedBy: f.Coordinator, AllowReassignment: true,
		})
		if err != nil {
			t.Fatal(err)
		}
		if cs.Status != models.CaseActive || *cs.LawyerID != f.L2 {
			t.Fatalf("want ACTIVE with L2, got %s %v", cs.Status, cs.LawyerID)
		}
	})
}

// A failed timeline write undoes the case update and the assignment row.
func Test_Assign_ActivityWriteFails_RollsBackEverything(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, nil, models.CasePending)
		before := loadCase(t, tx, caseID)
		rec := &recorder{}
		m := NewManager(tx, rec, zap.NewNop())

		failInserts[models.CaseActivity](t, db)

		_, err := m.Assign(context.Background(), AssignInput{CaseID: caseID, LawyerID: f.L1, PerformedBy: f.Coordinator})
		if !apperr.Is(err, apperr.KindStoreFailure) {
			t.Fatalf("want store failure, got %v", err)
		}

		after := loadCase(t, tx, caseID)
		if after.Status != models.CasePending || after.LawyerID != nil || !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Fatalf("case changed: %#v", after)
		}
		if n := countRows(t, tx, &models.CaseAssignment{}, caseID); n != 0 {
			t.Fatalf("assignment row survived the rollback: %d", n)
		}
		if rec.to(f.L1) != 0 || rec.to(f.Client) != 0 {
			t.Fatal("nobody should be notified about a rolled back assignment")
		}
	})
}

func Test_Assign_Failures(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		suspended := seedUser(t, tx, models.RoleLawyer, models.UserSuspended)
		pending := seedCase(t, tx, f.Client, nil, models.CasePending)
		closed := seedCase(t, tx, f.Client, nil, models.CaseClosed)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())

		cases := []struct {
			name string
			in   AssignInput
			want apperr.Kind
		}{
			{"missing case id", AssignInput{LawyerID: f.L1, PerformedBy: f.Coordinator}, apperr.KindValidation},
			{"missing lawyer id", AssignInput{CaseID: pending, PerformedBy: f.Coordinator}, apperr.KindValidation},
			{"unknown case", AssignInput{CaseID: uuid.New(), LawyerID: f.L1, PerformedBy: f.Coordinator}, apperr.KindNotFound},
			{"unknown lawyer", AssignInput{CaseID: pending, LawyerID: uuid.New(), PerformedBy: f.Coordinator}, apperr.KindNotFound},
			{"client as lawyer", AssignInput{CaseID: pending, LawyerID: f.Client, PerformedBy: f.Coordinator}, apperr.KindNotFound},
			{"suspended lawyer", AssignInput{CaseID: pending, LawyerID: suspended, PerformedBy: f.Coordinator}, apperr.KindConflict},
			{"closed case", AssignInput{CaseID: closed, LawyerID: f.L1, PerformedBy: f.Coordinator}, apperr.KindConflict},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := m.Assign(context.Background(), tc.in)
				if !apperr.Is(err, tc.want) {
					t.Fatalf("want %s, got %v", tc.want, err)
				}
			})
		}

		if cs := loadCase(t, tx, pending); cs.Status != models.CasePending || cs.LawyerID != nil {
			t.Fatalf("failed assigns must not touch the case: %#v", cs)
		}
	})
}

func Test_Update_PlainPatch_WritesOneUpdateActivity(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, &f.L1, models.CaseActive)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())

		cs, err := m.Update(context.Background(), caseID, f.Coordinator, PlainUpdate{Patch: CasePatch{
			Title:    ptr("Renamed"),
			Priority: ptr(models.PriorityUrgent),
		}})
		if err != nil {
			t.Fatal(err)
		}
		if cs.Title != "Renamed" || cs.Priority != models.PriorityUrgent || *cs.LawyerID != f.L1 {
			t.Fatalf("patch not applied: %#v", cs)
		}

		var acts []models.CaseActivity
		_ = tx.Where("case_id = ?", caseID).Find(&acts).Error
		if len(acts) != 1 || acts[0].Type != models.ActivityUpdate {
			t.Fatalf("want one UPDATE activity, got %#v", acts)
		}
		if n := countRows(t, tx, &models.CaseAssignment{}, caseID); n != 0 {
			t.Fatalf("plain update must not append assignments, got %d", n)
		}
	})
}

func Test_Update_ReassignmentUpdate_IsImplicitAssignment(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, &f.L1, models.CaseActive)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())

		cs, err := m.Update(context.Background(), caseID, f.Coordinator, ReassignmentUpdate{
			Patch:    CasePatch{Category: ptr("Employment")},
			LawyerID: f.L2,
		})
		if err != nil {
			t.Fatal(err)
		}
		if *cs.LawyerID != f.L2 || cs.Category != "Employment" || cs.Status != models.CaseActive {
			t.Fatalf("unexpected case: %#v", cs)
		}

		var acts []models.CaseActivity
		_ = tx.Where("case_id = ?", caseID).Find(&acts).Error
		if len(acts) != 1 || acts[0].Type != models.ActivityAssignment {
			t.Fatalf("want exactly one ASSIGNMENT activity, got %#v", acts)
		}
		var asg []models.CaseAssignment
		_ = tx.Where("case_id = ?", caseID).Find(&asg).Error
		if len(asg) != 1 || asg[0].AssignedToID != f.L2 || !strings.Contains(asg[0].Notes, "reassigned") {
			t.Fatalf("want one reassignment row, got %#v", asg)
		}
	})
}

// A flagged case gets its new lawyer but stays PENDING_REASSIGNMENT; only
// Assign with reassignment reactivates it.
func Test_Update_ReassignmentUpdate_KeepsPendingReassignment(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, &f.L1, models.CasePendingReassignment)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())

		cs, err := m.Update(context.Background(), caseID, f.Coordinator, ReassignmentUpdate{LawyerID: f.L2})
		if err != nil {
			t.Fatal(err)
		}
		if cs.Status != models.CasePendingReassignment || *cs.LawyerID != f.L2 {
			t.Fatalf("want PENDING_REASSIGNMENT with L2, got %s %v", cs.Status, cs.LawyerID)
		}
		if n := countRows(t, tx, &models.CaseAssignment{}, caseID); n != 1 {
			t.Fatalf("want one assignment row, got %d", n)
		}

		cs, err = m.Assign(context.Background(), AssignInput{
			CaseID: caseID, LawyerID: f.L2, PerformedBy: f.Coordinator, AllowReassignment: true,
		})
		if err != nil {
			t.Fatal(err)
		}
		if cs.Status != models.CaseActive {
			t.Fatalf("assign should reactivate, got %s", cs.Status)
		}
	})
}

// An unassigned case becomes ACTIVE; the pointer form is handled the same way.
func Test_Update_ReassignmentUpdate_PendingCaseBecomesActive(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, nil, models.CasePending)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())

		cs, err := m.Update(context.Background(), caseID, f.Coordinator, &ReassignmentUpdate{LawyerID: f.L1})
		if err != nil {
			t.Fatal(err)
		}
		if cs.Status != models.CaseActive || cs.LawyerID == nil || *cs.LawyerID != f.L1 {
			t.Fatalf("want ACTIVE with L1, got %s %v", cs.Status, cs.LawyerID)
		}
		var act models.CaseActivity
		_ = tx.Where("case_id = ?", caseID).First(&act).Error
		if act.Type != models.ActivityAssignment {
			t.Fatalf("want ASSIGNMENT activity, got %s", act.Type)
		}
	})
}

// Naming the current lawyer is not a reassignment.
func Test_Update_SameLawyer_BehavesLikePlainUpdate(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, &f.L1, models.CaseActive)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())

		if _, err := m.Update(context.Background(), caseID, f.Coordinator, ReassignmentUpdate{
			Patch:    CasePatch{Description: ptr("more detail")},
			LawyerID: f.L1,
		}); err != nil {
			t.Fatal(err)
		}
		if n := countRows(t, tx, &models.CaseAssignment{}, caseID); n != 0 {
			t.Fatalf("want no assignment rows, got %d", n)
		}
		var act models.CaseActivity
		_ = tx.Where("case_id = ?", caseID).First(&act).Error
		if act.Type != models.ActivityUpdate {
			t.Fatalf("want UPDATE activity, got %s", act.Type)
		}
	})
}

func Test_Update_Rejections(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		active := seedCase(t, tx, f.Client, &f.L1, models.CaseActive)
		resolved := seedCase(t, tx, f.Client, &f.L1, models.CaseResolved)
		unassigned := seedCase(t, tx, f.Client, nil, models.CasePending)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())
		ctx := context.Background()

		if _, err := m.Update(ctx, unassigned, f.Coordinator, PlainUpdate{Patch: CasePatch{Status: ptr(models.CaseResolved)}}); !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("resolving without a lawyer: want conflict, got %v", err)
		}
		if cs := loadCase(t, tx, unassigned); cs.Status != models.CasePending {
			t.Fatalf("unassigned case changed: %s", cs.Status)
		}
		if _, err := m.Update(ctx, active, uuid.Nil, PlainUpdate{Patch: CasePatch{Title: ptr("x")}}); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("missing actor: want validation, got %v", err)
		}
		var nilUpdate *ReassignmentUpdate
		if _, err := m.Update(ctx, active, f.Coordinator, nilUpdate); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("nil update: want validation, got %v", err)
		}

		if _, err := m.Update(ctx, active, f.Coordinator, PlainUpdate{}); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("empty patch: want validation, got %v", err)
		}
		if _, err := m.Update(ctx, active, f.Coordinator, PlainUpdate{Patch: CasePatch{Status: ptr(models.CasePending)}}); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("PENDING with a lawyer: want validation, got %v", err)
		}
		if _, err := m.Update(ctx, active, f.Coordinator, ReassignmentUpdate{
			Patch: CasePatch{Status: ptr(models.CaseClosed)}, LawyerID: f.L2,
		}); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("status and lawyer together: want validation, got %v", err)
		}
		if _, err := m.Update(ctx, resolved, f.Coordinator, ReassignmentUpdate{LawyerID: f.L2}); !apperr.Is(err, apperr.KindConflict) {
			t.Fatalf("reassigning a resolved case: want conflict, got %v", err)
		}
		if _, err := m.Update(ctx, uuid.New(), f.Coordinator, PlainUpdate{Patch: CasePatch{Title: ptr("x")}}); !apperr.Is(err, apperr.KindNotFound) {
			t.Fatalf("unknown case: want not found, got %v", err)
		}

		cs, err := m.Update(ctx, active, f.Coordinator, PlainUpdate{Patch: CasePatch{Status: ptr(models.CaseResolved)}})
		if err != nil {
			t.Fatal(err)
		}
		if cs.Status != models.CaseResolved || *cs.LawyerID != f.L1 {
			t.Fatalf("want RESOLVED keeping L1, got %#v", cs)
		}
	})
}

// No sequence of manager calls leaves a lawyer on a PENDING case.
func Test_Invariant_LawyerImpliesNotPending(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		m := NewManager(tx, notify.Nop{}, zap.NewNop())
		ctx := context.Background()

		cs, err := m.Create(ctx, CreateInput{ClientID: f.Client, Title: "t", Category: "c"})
		if err != nil {
			t.Fatal(err)
		}
		_, _ = m.Update(ctx, cs.ID, f.Coordinator, ReassignmentUpdate{LawyerID: f.L1})
		_, _ = m.Assign(ctx, AssignInput{CaseID: cs.ID, LawyerID: f.L2, PerformedBy: f.Coordinator})
		_, _ = m.Assign(ctx, AssignInput{CaseID: cs.ID, LawyerID: f.L2, PerformedBy: f.Coordinator, AllowReassignment: true})
		_, _ = m.Update(ctx, cs.ID, f.Coordinator, PlainUpdate{Patch: CasePatch{Priority: ptr(models.PriorityHigh)}})

		var bad int64
		if err := tx.Model(&models.Case{}).
			Where("lawyer_id IS NOT NULL AND status = ?", models.CasePending).
			Count(&bad).Error; err != nil {
			t.Fatal(err)
		}
		if bad != 0 {
			t.Fatalf("%d cases are PENDING with a lawyer", bad)
		}
	})
}

/* ============================================================================
   HTTP
   ============================================================================ */

func Test_HTTP_Assign_StatusCodes(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		assigned := seedCase(t, tx, f.Client, &f.L1, models.CaseActive)
		h := NewHandler(tx, NewManager(tx, notify.Nop{}, zap.NewNop()))
		app := newTestApp(h, f.Coordinator, models.RoleCoordinator)

		tests := []struct {
			name string
			path string
			body string
			want int
			code string
		}{
			{"missing lawyer", "/cases/" + assigned.String() + "/assign", `{}`, 400, ""},
			{"bad case id", "/cases/nope/assign", `{"lawyer_id":"` + f.L2.String() + `"}`, 400, "BAD_REQUEST"},
			{"unknown case", "/cases/" + uuid.NewString() + "/assign", `{"lawyer_id":"` + f.L2.String() + `"}`, 404, "NOT_FOUND"},
			{"already assigned", "/cases/" + assigned.String() + "/assign", `{"lawyer_id":"` + f.L2.String() + `"}`, 409, "CONFLICT"},
			{"reassign", "/cases/" + assigned.String() + "/assign", `{"lawyer_id":"` + f.L2.String() + `","reassignment":true}`, 200, ""},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				req := httptest.NewRequest("POST", tc.path, strings.NewReader(tc.body))
				req.Header.Set("Content-Type", "application/json")
				resp, err := app.Test(req, -1)
				if err != nil {
					t.Fatal(err)
				}
				if resp.StatusCode != tc.want {
					t.Fatalf("status %d, want %d", resp.StatusCode, tc.want)
				}
				if tc.code != "" {
					var body models.ErrorResponse
					_ = json.NewDecoder(resp.Body).Decode(&body)
					if body.Code != tc.code {
						t.Fatalf("code %q, want %q", body.Code, tc.code)
					}
				}
			})
		}
	})
}

func Test_HTTP_Update_LawyerIDMakesReassignment(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, &f.L1, models.CaseActive)
		h := NewHandler(tx, NewManager(tx, notify.Nop{}, zap.NewNop()))
		app := newTestApp(h, f.Coordinator, models.RoleCoordinator)

		body := `{"title":"Updated","lawyer_id":"` + f.L2.String() + `","notes":"handover"}`
		req := httptest.NewRequest("PATCH", "/cases/"+caseID.String(), strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req, -1)
		if resp.StatusCode != 200 {
			t.Fatalf("status %d", resp.StatusCode)
		}
		var out models.Case
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.LawyerID == nil || *out.LawyerID != f.L2 || out.Title != "Updated" {
			t.Fatalf("unexpected case: %#v", out)
		}
	})
}

func Test_HTTP_GetDetail_Permissions(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		caseID := seedCase(t, tx, f.Client, &f.L1, models.CaseActive)
		other := seedUser(t, tx, models.RoleClient, models.UserActive)
		h := NewHandler(tx, NewManager(tx, notify.Nop{}, zap.NewNop()))

		tests := []struct {
			user uuid.UUID
			role models.Role
			want int
		}{
			{f.Client, models.RoleClient, 200},
			{f.L1, models.RoleLawyer, 200},
			{f.Coordinator, models.RoleCoordinator, 200},
			{other, models.RoleClient, 403},
			{f.L2, models.RoleLawyer, 403},
		}
		for _, tc := range tests {
			app := newTestApp(h, tc.user, tc.role)
			resp, _ := app.Test(httptest.NewRequest("GET", "/cases/"+caseID.String(), nil), -1)
			if resp.StatusCode != tc.want {
				t.Fatalf("%s: status %d, want %d", tc.role, resp.StatusCode, tc.want)
			}
		}
	})
}

func Test_HTTP_ListAssigned_Pagination(t *testing.T) {
	db := openTestDB(t)
	withTx(t, db, func(tx *gorm.DB) {
		f := seedPeople(t, tx)
		for i := 0; i < 3; i++ {
			seedCase(t, tx, f.Client, &f.L1, models.CaseActive)
		}
		seedCase(t, tx, f.Client, &f.L1, models.CasePendingReassignment)
		seedCase(t, tx, f.Client, &f.L2, models.CaseActive)

		h := NewHandler(tx, NewManager(tx, notify.Nop{}, zap.NewNop()))
		app := newTestApp(h, f.L1, models.RoleLawyer)

		resp, _ := app.Test(httptest.NewRequest("GET", "/cases/assigned?page=1&pageSize=2", nil), -1)
		if resp.StatusCode != 200 {
			t.Fatalf("status %d", resp.StatusCode)
		}
		var out PageCases
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.Total != 4 || out.Pages != 2 || len(out.Items) != 2 {
			t.Fatalf("unexpected page: total=%d pages=%d items=%d", out.Total, out.Pages, len(out.Items))
		}

		resp, _ = app.Test(httptest.NewRequest("GET", "/cases/assigned?status=PENDING_REASSIGNMENT", nil), -1)
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.Total != 1 || out.Items[0].Status != models.CasePendingReassignment {
			t.Fatalf("status filter: %#v", out)
		}

		resp, _ = app.Test(httptest.NewRequest("GET", "/cases/assigned?status=BOGUS", nil), -1)
		if resp.StatusCode != 400 {
			t.Fatalf("bad filter: status %d", resp.StatusCode)
		}
	})
}
