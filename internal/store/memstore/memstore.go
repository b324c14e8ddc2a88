// Package memstore keeps submissions, problems and test cases in process
// memory. It backs tests and the brokerless local mode; both the
// dispatcher and the ingestor write to it concurrently, which the xsync
// maps absorb without a global lock.
package memstore

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/programme-lv/grader/internal/problem"
	"github.com/programme-lv/grader/internal/submission"
)

type Store struct {
	subms    *xsync.MapOf[int64, submission.Submission]
	problems *xsync.MapOf[int64, problem.Problem]
	tests    *xsync.MapOf[int64, []problem.TestCase]

	nextSubmID atomic.Int64
	nextTestID atomic.Int64
}

var _ submission.Store = (*Store)(nil)
var _ problem.Provider = (*Store)(nil)
var _ problem.TestCaseProvider = (*Store)(nil)

func New() *Store {
	return &Store{
		subms:    xsync.NewMapOf[int64, submission.Submission](),
		problems: xsync.NewMapOf[int64, problem.Problem](),
		tests:    xsync.NewMapOf[int64, []problem.TestCase](),
	}
}

func copySubm(s submission.Submission) submission.Submission {
	if s.Score != nil {
		score := *s.Score
		s.Score = &score
	}
	if s.UpdatedAt != nil {
		at := *s.UpdatedAt
		s.UpdatedAt = &at
	}
	return s
}

func (s *Store) Save(_ context.Context, subm *submission.Submission) (*submission.Submission, error) {
	saved := copySubm(*subm)
	if saved.ID == 0 {
		saved.ID = s.nextSubmID.Add(1)
	}
	s.subms.Store(saved.ID, saved)
	out := copySubm(saved)
	return &out, nil
}

func (s *Store) FindByID(_ context.Context, id int64) (*submission.Submission, error) {
	subm, ok := s.subms.Load(id)
	if !ok {
		return nil, &submission.NotFoundError{Entity: "submission", ID: id}
	}
	out := copySubm(subm)
	return &out, nil
}

func (s *Store) FindByProblemAndUser(_ context.Context, problemID int64, userID int64) ([]submission.Submission, error) {
	var res []submission.Submission
	s.subms.Range(func(_ int64, subm submission.Submission) bool {
		if subm.ProblemID == problemID && subm.UserID == userID {
			res = append(res, copySubm(subm))
		}
		return true
	})
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	if _, ok := s.subms.LoadAndDelete(id); !ok {
		return &submission.NotFoundError{Entity: "submission", ID: id}
	}
	return nil
}

func (s *Store) DeleteAllByProblemAndUser(_ context.Context, problemID int64, userID int64) error {
	s.subms.Range(func(id int64, subm submission.Submission) bool {
		if subm.ProblemID == problemID && subm.UserID == userID {
			s.subms.Delete(id)
		}
		return true
	})
	return nil
}

func (s *Store) Exists(_ context.Context, problemID int64) (bool, error) {
	_, ok := s.problems.Load(problemID)
	return ok, nil
}

func (s *Store) FindByProblem(_ context.Context, problemID int64) ([]problem.TestCase, error) {
	tests, _ := s.tests.Load(problemID)
	out := make([]problem.TestCase, len(tests))
	copy(out, tests)
	return out, nil
}

// AddProblem seeds a problem for tests and local mode.
func (s *Store) AddProblem(p problem.Problem) {
	s.problems.Store(p.ID, p)
}

// AddTestCase seeds a test case, assigning its id.
func (s *Store) AddTestCase(tc problem.TestCase) problem.TestCase {
	tc.ID = s.nextTestID.Add(1)
	s.tests.Compute(tc.ProblemID, func(old []problem.TestCase, _ bool) ([]problem.TestCase, bool) {
		return append(old, tc), false
	})
	return tc
}
