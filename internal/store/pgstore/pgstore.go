// Package pgstore is the Postgres-backed submission store. Plain SQL over
// sqlx; schema mirrors the submissions / problems / test_cases tables.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/programme-lv/grader/internal/problem"
	"github.com/programme-lv/grader/internal/submission"
)

type Store struct {
	db *sqlx.DB
}

var _ submission.Store = (*Store)(nil)
var _ problem.Provider = (*Store)(nil)
var _ problem.TestCaseProvider = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Connect opens and pings a Postgres connection.
func Connect(connString string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

func (s *Store) Save(ctx context.Context, subm *submission.Submission) (*submission.Submission, error) {
	saved := *subm
	if saved.ID == 0 {
		err := s.db.QueryRowxContext(ctx,
			`INSERT INTO submissions
				(user_id, problem_id, code, language, score, status, submitted_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			saved.UserID, saved.ProblemID, saved.Code, saved.Language,
			saved.Score, saved.Status, saved.SubmittedAt, saved.UpdatedAt,
		).Scan(&saved.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert submission: %w", err)
		}
		return &saved, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE submissions
		SET code = $1, language = $2, score = $3, status = $4, updated_at = $5
		WHERE id = $6`,
		saved.Code, saved.Language, saved.Score, saved.Status, saved.UpdatedAt, saved.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update submission %d: %w", saved.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update submission %d: %w", saved.ID, err)
	}
	if affected == 0 {
		return nil, &submission.NotFoundError{Entity: "submission", ID: saved.ID}
	}
	return &saved, nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (*submission.Submission, error) {
	var subm submission.Submission
	err := s.db.GetContext(ctx, &subm,
		`SELECT id, user_id, problem_id, code, language, score, status, submitted_at, updated_at
		FROM submissions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &submission.NotFoundError{Entity: "submission", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select submission %d: %w", id, err)
	}
	return &subm, nil
}

func (s *Store) FindByProblemAndUser(ctx context.Context, problemID int64, userID int64) ([]submission.Submission, error) {
	var subms []submission.Submission
	err := s.db.SelectContext(ctx, &subms,
		`SELECT id, user_id, problem_id, code, language, score, status, submitted_at, updated_at
		FROM submissions WHERE problem_id = $1 AND user_id = $2 ORDER BY id ASC`,
		problemID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select submissions: %w", err)
	}
	return subms, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete submission %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete submission %d: %w", id, err)
	}
	if affected == 0 {
		return &submission.NotFoundError{Entity: "submission", ID: id}
	}
	return nil
}

func (s *Store) DeleteAllByProblemAndUser(ctx context.Context, problemID int64, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM submissions WHERE problem_id = $1 AND user_id = $2`,
		problemID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete submissions: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, problemID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM problems WHERE id = $1)`, problemID)
	if err != nil {
		return false, fmt.Errorf("failed to check problem %d: %w", problemID, err)
	}
	return exists, nil
}

func (s *Store) FindByProblem(ctx context.Context, problemID int64) ([]problem.TestCase, error) {
	var tests []problem.TestCase
	err := s.db.SelectContext(ctx, &tests,
		`SELECT id, problem_id, input, output, visibility
		FROM test_cases WHERE problem_id = $1 ORDER BY id ASC`, problemID)
	if err != nil {
		return nil, fmt.Errorf("failed to select test cases for problem %d: %w", problemID, err)
	}
	return tests, nil
}
