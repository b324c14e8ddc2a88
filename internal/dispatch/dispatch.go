// Package dispatch implements the outbound half of the grading pipeline:
// validate a submission, persist it pending, snapshot it together with its
// problem's test cases and publish the grading request.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/channel"
	"github.com/programme-lv/grader/internal/problem"
	"github.com/programme-lv/grader/internal/submission"
)

const DefaultPublishTimeout = 10 * time.Second

type Dispatcher struct {
	subms    submission.Store
	problems problem.Provider
	tests    problem.TestCaseProvider
	pub      channel.Publisher

	// languages is the set of accepted language tags; empty means any
	// non-blank tag is accepted.
	languages      mapset.Set[string]
	publishTimeout time.Duration
	log            *slog.Logger
}

type Option func(*Dispatcher)

// WithAllowedLanguages restricts the language tags Dispatch accepts.
func WithAllowedLanguages(langs []string) Option {
	return func(d *Dispatcher) {
		for _, l := range langs {
			d.languages.Add(strings.ToLower(l))
		}
	}
}

func WithPublishTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.publishTimeout = timeout }
}

func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

func New(
	subms submission.Store,
	problems problem.Provider,
	tests problem.TestCaseProvider,
	pub channel.Publisher,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		subms:          subms,
		problems:       problems,
		tests:          tests,
		pub:            pub,
		languages:      mapset.NewSet[string](),
		publishTimeout: DefaultPublishTimeout,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) validate(code string, language string) error {
	if err := submission.ValidateFields(code, language); err != nil {
		return err
	}
	if d.languages.Cardinality() > 0 && !d.languages.Contains(strings.ToLower(language)) {
		return &submission.ValidationError{Field: "language", Reason: "not an accepted language"}
	}
	return nil
}

// Dispatch persists a new pending submission and publishes exactly one
// grading request for it. If the publish fails after the persist succeeded
// the persisted record is returned together with a *DispatchError, so the
// caller can tell "accepted but not enqueued" apart from a rejection; the
// submission stays pending and Redispatch can retry it.
func (d *Dispatcher) Dispatch(ctx context.Context, problemID int64, userID int64, code string, language string) (*submission.Submission, error) {
	if err := d.validate(code, language); err != nil {
		return nil, err
	}

	exists, err := d.problems.Exists(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up problem %d: %w", problemID, err)
	}
	if !exists {
		return nil, &submission.NotFoundError{Entity: "problem", ID: problemID}
	}

	tests, err := d.tests.FindByProblem(ctx, problemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test cases for problem %d: %w", problemID, err)
	}
	if len(tests) == 0 {
		return nil, &submission.NotFoundError{Entity: "test cases for problem", ID: problemID}
	}

	saved, err := d.subms.Save(ctx, submission.New(problemID, userID, code, language))
	if err != nil {
		return nil, fmt.Errorf("failed to persist submission: %w", err)
	}

	if err := d.publishRequest(ctx, saved, tests); err != nil {
		d.log.Warn("submission persisted but not enqueued",
			slog.Int64("submission_id", saved.ID), slog.Any("error", err))
		return saved, &submission.DispatchError{SubmissionID: saved.ID, Err: err}
	}

	d.log.Info("dispatched submission",
		slog.Int64("submission_id", saved.ID),
		slog.Int64("problem_id", problemID),
		slog.Int("test_cases", len(tests)))
	return saved, nil
}

// UpdateFields edits code/language on a pending submission, clearing its
// score. A terminal submission is left untouched and reported as a
// conflict. The in-flight grading request, if any, is unaffected; use
// Redispatch to grade the edited code.
func (d *Dispatcher) UpdateFields(ctx context.Context, submissionID int64, code string, language string) (*submission.Submission, error) {
	if err := d.validate(code, language); err != nil {
		return nil, err
	}
	subm, err := d.subms.FindByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if err := subm.SetFields(code, language); err != nil {
		return nil, err
	}
	saved, err := d.subms.Save(ctx, subm)
	if err != nil {
		return nil, fmt.Errorf("failed to persist submission %d: %w", submissionID, err)
	}
	d.log.Info("updated submission fields", slog.Int64("submission_id", submissionID))
	return saved, nil
}

// Redispatch publishes a fresh grading request for a submission that is
// still pending, e.g. one stuck after a failed enqueue or edited since its
// original dispatch. The snapshot uses the current record and the
// problem's current test cases.
func (d *Dispatcher) Redispatch(ctx context.Context, submissionID int64) (*submission.Submission, error) {
	subm, err := d.subms.FindByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if subm.Status.Terminal() {
		return nil, &submission.ConflictError{SubmissionID: submissionID}
	}
	tests, err := d.tests.FindByProblem(ctx, subm.ProblemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load test cases for problem %d: %w", subm.ProblemID, err)
	}
	if len(tests) == 0 {
		return nil, &submission.NotFoundError{Entity: "test cases for problem", ID: subm.ProblemID}
	}
	if err := d.publishRequest(ctx, subm, tests); err != nil {
		return nil, &submission.DispatchError{SubmissionID: submissionID, Err: err}
	}
	d.log.Info("redispatched submission", slog.Int64("submission_id", submissionID))
	return subm, nil
}

func (d *Dispatcher) publishRequest(ctx context.Context, subm *submission.Submission, tests []problem.TestCase) error {
	req := api.NewGradingRequest(
		api.SubmissionRef{ID: subm.ID, Code: subm.Code, Language: subm.Language},
		mapTestCases(tests),
	)
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal grading request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	key := strconv.FormatInt(subm.ID, 10)
	return d.pub.Publish(ctx, api.TopicGradingRequests, key, body)
}

func mapTestCases(tests []problem.TestCase) []api.ReqTestCase {
	out := make([]api.ReqTestCase, len(tests))
	for i, tc := range tests {
		out[i] = api.ReqTestCase{
			ID:         tc.ID,
			Input:      tc.Input,
			Output:     tc.Output,
			Visibility: string(tc.Visibility),
		}
	}
	return out
}

// GetByID returns one submission.
func (d *Dispatcher) GetByID(ctx context.Context, submissionID int64) (*submission.Submission, error) {
	return d.subms.FindByID(ctx, submissionID)
}

// ListByProblemAndUser returns the given user's submissions for a problem.
// The acting user id is always an explicit argument, never ambient state.
func (d *Dispatcher) ListByProblemAndUser(ctx context.Context, problemID int64, userID int64) ([]submission.Submission, error) {
	return d.subms.FindByProblemAndUser(ctx, problemID, userID)
}

// Delete removes one submission. This is the only way out of a terminal
// state: the record is removed, not transitioned.
func (d *Dispatcher) Delete(ctx context.Context, submissionID int64) error {
	return d.subms.Delete(ctx, submissionID)
}

// DeleteAllByProblemAndUser bulk-removes a user's submissions for a problem.
func (d *Dispatcher) DeleteAllByProblemAndUser(ctx context.Context, problemID int64, userID int64) error {
	return d.subms.DeleteAllByProblemAndUser(ctx, problemID, userID)
}
