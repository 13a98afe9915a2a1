package utils

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

// LogCaseActivity appends one timeline entry for a case. It must be called
// with the transaction that performs the state change so the entry commits or
// rolls back together with it.
func LogCaseActivity(
	tx *gorm.DB,
	caseID, actorID uuid.UUID,
	typ models.ActivityType,
	title, description string,
) error {
	return tx.Create(&models.CaseActivity{
		CaseID:      caseID,
		UserID:      actorID,
		Type:        typ,
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}).Error
}

// LogVerification appends one verification audit record inside tx.
func LogVerification(
	tx *gorm.DB,
	requestID uuid.UUID,
	typ models.VerificationType,
	status models.VerificationStatus,
	subjectID, actorID *uuid.UUID,
	notes string,
) error {
	return tx.Create(&models.VerificationRecord{
		ServiceRequestID: requestID,
		Type:             typ,
		Status:           status,
		SubjectID:        subjectID,
		VerifiedByID:     actorID,
		Notes:            notes,
		CreatedAt:        time.Now().UTC(),
	}).Error
}
