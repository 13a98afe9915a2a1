package servicerequests

import "github.com/aldoetobex/legal-aid-backend/pkg/models"

// Snapshot is everything the approval rule looks at. It is built from the
// rows read inside the verifying transaction.
type Snapshot struct {
	Status      models.RequestStatus
	ServiceType models.ServiceType
	Documents   []bool // verified flag per document
	Income      *IncomeSignal
	Payment     *PaymentSignal
}

type IncomeSignal struct {
	AnnualIncome float64
	Verified     bool
}

type PaymentSignal struct {
	Verified bool
}

// Reason says which rule produced an approval.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonIncome    Reason = "legal_aid_income_eligible"
	ReasonAggregate Reason = "all_verifications_complete"
)

// Decision is the outcome of Evaluate.
type Decision struct {
	Status models.RequestStatus
	Reason Reason
}

// Promoted reports whether the decision moves a PENDING request to APPROVED.
func (d Decision) Promoted(from models.RequestStatus) bool {
	return from == models.RequestPending && d.Status == models.RequestApproved
}

// Evaluate computes the status a request should have. It depends only on the
// current signals, never on the order they arrived in.
//
// Only PENDING requests move; every other status, APPROVED included, is kept.
// A LEGAL_AID request is approved as soon as its income is verified at or
// under threshold. Otherwise approval needs every document verified, a
// verified payment, and a verified income proof if one exists. A nil
// threshold disables the income shortcut.
func Evaluate(s Snapshot, threshold *float64) Decision {
	if s.Status != models.RequestPending {
		return Decision{Status: s.Status}
	}

	if incomeEligible(s, threshold) {
		return Decision{Status: models.RequestApproved, Reason: ReasonIncome}
	}

	for _, verified := range s.Documents {
		if !verified {
			return Decision{Status: models.RequestPending}
		}
	}
	if s.Payment == nil || !s.Payment.Verified {
		return Decision{Status: models.RequestPending}
	}
	if s.Income != nil && !s.Income.Verified {
		return Decision{Status: models.RequestPending}
	}
	return Decision{Status: models.RequestApproved, Reason: ReasonAggregate}
}

func incomeEligible(s Snapshot, threshold *float64) bool {
	return threshold != nil &&
		s.ServiceType == models.ServiceLegalAid &&
		s.Income != nil &&
		s.Income.Verified &&
		s.Income.AnnualIncome <= *threshold
}

// snapshotOf converts a loaded request (with IncomeProof, Payment and
// Documents preloaded) into the rule's input.
func snapshotOf(r *models.ServiceRequest) Snapshot {
	s := Snapshot{
		Status:      r.Status,
		ServiceType: r.ServiceType,
		Documents:   make([]bool, 0, len(r.Documents)),
	}
	for _, d := range r.Documents {
		s.Documents = append(s.Documents, d.Verified)
	}
	if r.IncomeProof != nil {
		s.Income = &IncomeSignal{AnnualIncome: r.IncomeProof.AnnualIncome, Verified: r.IncomeProof.Verified}
	}
	if r.Payment != nil {
		s.Payment = &PaymentSignal{Verified: r.Payment.Verified}
	}
	return s
}
