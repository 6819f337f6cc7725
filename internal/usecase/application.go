package usecase

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"time"

	"github.com/chadiek/preapproval-line/internal/decision"
)

// DecisionSolver evaluates a prepared application against a rules engine.
type DecisionSolver interface {
	Solve(ctx context.Context, input map[string]any) (decision.Result, error)
}

// Notifier sends decision outcome emails to the applicant.
type Notifier interface {
	SendApprovalNotification(ctx context.Context, email, name string, approvalAmount float64, applicationID string) bool
	SendDenialNotification(ctx context.Context, email, name, reason, applicationID string) bool
}

// ApplicationForm carries the submitted loan application fields.
type ApplicationForm struct {
	LegalName         string
	DOB               string
	Email             string
	Phone             string
	SSNLast4          string
	MonthlyIncome     float64
	RequestedAmount   float64
	LoanDurationYears int
	PurposeOfLoan     string
	TermsConsent      bool
}

// CreditProfile is the assessment attached to the application. The lookup is
// mocked but keeps the shape of a bureau response.
type CreditProfile struct {
	CreditScore   int    `json:"creditScore"`
	CreditHistory string `json:"creditHistory"`
	Source        string `json:"source"`
	RequestedAt   string `json:"requestedAt"`
}

// Decision is the parsed rules engine verdict.
type Decision struct {
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
	Raw     any    `json:"raw,omitempty"`
}

// EmailStatus reports whether the outcome notification went out.
type EmailStatus struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// ApplicationResult is returned to the form on successful processing.
type ApplicationResult struct {
	Success          bool          `json:"success"`
	Message          string        `json:"message"`
	ApplicationID    string        `json:"application_id"`
	CreditAssessment CreditProfile `json:"credit_assessment"`
	Decision         Decision      `json:"decision"`
	Email            EmailStatus   `json:"email"`
}

// ApplicationService runs the full pre-approval pipeline: derived financials,
// credit assessment, rules engine decision, outcome notification.
type ApplicationService struct {
	solver   DecisionSolver
	notifier Notifier
}

func NewApplicationService(solver DecisionSolver, notifier Notifier) *ApplicationService {
	return &ApplicationService{solver: solver, notifier: notifier}
}

// Validate checks the required form fields.
func (f *ApplicationForm) Validate() error {
	switch {
	case f.LegalName == "":
		return fmt.Errorf("legal_name is required")
	case f.Email == "":
		return fmt.Errorf("email is required")
	case f.RequestedAmount <= 0:
		return fmt.Errorf("requested_amount must be positive")
	case f.LoanDurationYears <= 0:
		return fmt.Errorf("loan_duration_years must be positive")
	}
	return nil
}

// Submit processes a loan application end to end. Errors mean the application
// could not be decided; notification failures are reported in the result.
func (s *ApplicationService) Submit(ctx context.Context, form ApplicationForm) (*ApplicationResult, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	totalMonths := form.LoanDurationYears * 12
	if totalMonths < 1 {
		totalMonths = 1
	}
	estimatedMonthlyPayment := round2(form.RequestedAmount / float64(totalMonths))
	var debtToIncomeRatio float64
	if form.MonthlyIncome > 0 {
		debtToIncomeRatio = round2(estimatedMonthlyPayment / form.MonthlyIncome)
	}

	applicationID := buildApplicationID(form.LegalName, form.Email, form.DOB)
	log.Printf("loan application submitted: %s (%s), id=%s", form.LegalName, form.Email, applicationID)

	credit := fetchMockCreditScore(form.LegalName, form.SSNLast4)

	decisionInput := map[string]any{
		"ApplicationId":           applicationID,
		"ApplicantName":           form.LegalName,
		"ApplicantEmail":          form.Email,
		"MonthlyIncome":           form.MonthlyIncome,
		"RequestedAmount":         form.RequestedAmount,
		"LoanDurationYears":       form.LoanDurationYears,
		"EstimatedMonthlyPayment": estimatedMonthlyPayment,
		"PurposeOfLoan":           form.PurposeOfLoan,
		"ConsentGiven":            form.TermsConsent,
		"DebtToIncomeRatio":       debtToIncomeRatio,
		"CreditScore":             credit.CreditScore,
	}

	verdict, err := s.solver.Solve(ctx, decisionInput)
	if err != nil {
		return nil, err
	}
	if verdict.Outcome == "" {
		return nil, fmt.Errorf("rules engine response did not include a recognizable decision outcome")
	}
	log.Printf("decision for %s: outcome=%s reason=%q", applicationID, verdict.Outcome, verdict.Reason)

	status := s.notifyOutcome(ctx, form, verdict, applicationID)

	return &ApplicationResult{
		Success:          true,
		Message:          "Application submitted successfully",
		ApplicationID:    applicationID,
		CreditAssessment: credit,
		Decision:         Decision{Outcome: verdict.Outcome, Reason: verdict.Reason, Raw: verdict.Raw},
		Email:            status,
	}, nil
}

func (s *ApplicationService) notifyOutcome(ctx context.Context, form ApplicationForm, verdict decision.Result, applicationID string) EmailStatus {
	if s.notifier == nil {
		return EmailStatus{Error: "email notifier not configured"}
	}
	if decision.Approved(verdict.Outcome) {
		if s.notifier.SendApprovalNotification(ctx, form.Email, form.LegalName, form.RequestedAmount, applicationID) {
			return EmailStatus{Sent: true}
		}
		return EmailStatus{Error: "Failed to send approval email"}
	}
	if s.notifier.SendDenialNotification(ctx, form.Email, form.LegalName, verdict.Reason, applicationID) {
		return EmailStatus{Sent: true}
	}
	return EmailStatus{Error: "Failed to send denial email"}
}

// buildApplicationID derives a stable six digit reference from the applicant
// identity fields.
func buildApplicationID(legalName, email, dob string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(legalName + email + dob))
	return fmt.Sprintf("APP-%06d", h.Sum32()%1000000)
}

// fetchMockCreditScore stands in for a bureau call. The shape and logging
// mirror the real workflow so swapping in a live provider is mechanical.
func fetchMockCreditScore(legalName, ssnLast4 string) CreditProfile {
	log.Printf("requesting credit score for %s (SSN last4: %s)", legalName, ssnLast4)
	return CreditProfile{
		CreditScore:   720,
		CreditHistory: "Good standing with no delinquencies in the past 24 months.",
		Source:        "MockCreditBureau",
		RequestedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
