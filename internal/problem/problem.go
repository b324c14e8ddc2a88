package problem

import "context"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type Problem struct {
	ID         int64      `db:"id"`
	Title      string     `db:"title"`
	Difficulty Difficulty `db:"difficulty"`
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// TestCase is read-only from the grading pipeline's perspective; the
// dispatcher snapshots the full set of a problem into the outbound request
// and never mutates it.
type TestCase struct {
	ID         int64      `db:"id"`
	ProblemID  int64      `db:"problem_id"`
	Input      string     `db:"input"`
	Output     string     `db:"output"`
	Visibility Visibility `db:"visibility"`
}

// Provider answers the dispatcher's problem-exists precondition.
type Provider interface {
	Exists(ctx context.Context, problemID int64) (bool, error)
}

// TestCaseProvider supplies a problem's test cases in id order. The
// non-empty check is the dispatcher's responsibility, not the provider's.
type TestCaseProvider interface {
	FindByProblem(ctx context.Context, problemID int64) ([]TestCase, error)
}
