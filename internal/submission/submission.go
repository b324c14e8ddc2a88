package submission

import (
	"strings"
	"time"
)

// Status is the grading state of a submission. Accepted and rejected are
// terminal: the normal field-update path never leaves them.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// MaxFieldLen bounds both code and language at creation and at every
// field update.
const MaxFieldLen = 10000

// Submission is one user's code attempt at one problem. ID and SubmittedAt
// are assigned by the store and never change afterwards; UpdatedAt is
// touched on every state transition.
type Submission struct {
	ID        int64    `db:"id"`
	UserID    int64    `db:"user_id"`
	ProblemID int64    `db:"problem_id"`
	Code      string   `db:"code"`
	Language  string   `db:"language"`
	Score     *float64 `db:"score"`
	Status    Status   `db:"status"`

	SubmittedAt time.Time  `db:"submitted_at"`
	UpdatedAt   *time.Time `db:"updated_at"`
}

// ValidateFields checks the invariants shared by creation and field
// updates: code and language non-blank and within MaxFieldLen.
func ValidateFields(code string, language string) error {
	if strings.TrimSpace(code) == "" {
		return &ValidationError{Field: "code", Reason: "must not be blank"}
	}
	if len(code) > MaxFieldLen {
		return &ValidationError{Field: "code", Reason: "exceeds maximum length"}
	}
	if strings.TrimSpace(language) == "" {
		return &ValidationError{Field: "language", Reason: "must not be blank"}
	}
	if len(language) > MaxFieldLen {
		return &ValidationError{Field: "language", Reason: "exceeds maximum length"}
	}
	return nil
}

// New builds a not-yet-persisted submission in the initial pending state.
func New(problemID int64, userID int64, code string, language string) *Submission {
	return &Submission{
		UserID:      userID,
		ProblemID:   problemID,
		Code:        code,
		Language:    language,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}
}

// SetFields applies a code/language edit. Editing a terminal submission is
// a conflict; while pending the previous score is cleared and the record
// stays pending awaiting a fresh verdict.
func (s *Submission) SetFields(code string, language string) error {
	if s.Status.Terminal() {
		return &ConflictError{SubmissionID: s.ID}
	}
	if err := ValidateFields(code, language); err != nil {
		return err
	}
	now := time.Now()
	s.Code = code
	s.Language = language
	s.Score = nil
	s.Status = StatusPending
	s.UpdatedAt = &now
	return nil
}

// ApplyVerdict records a graded score and derives the terminal status.
// It applies unconditionally, including over an earlier verdict, so that a
// redelivered result re-writes the same state instead of failing.
func (s *Submission) ApplyVerdict(score float64, policy ScorePolicy) {
	now := time.Now()
	s.Score = &score
	s.Status = policy.StatusFor(score)
	s.UpdatedAt = &now
}
