// Package ingest implements the inbound half of the grading pipeline: a
// long-lived subscriber on the results topic that applies each verdict to
// its submission record.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/channel"
	"github.com/programme-lv/grader/internal/submission"
)

type Ingestor struct {
	subms  submission.Store
	sub    channel.Subscriber
	policy submission.ScorePolicy

	// locks serializes verdicts per submission id; verdicts for distinct
	// ids are applied concurrently. Entries are reference-counted and
	// evicted once the last holder releases, so the map stays bounded by
	// the number of in-flight verdicts, not by submission history.
	locks *xsync.MapOf[int64, *keyedLock]
	log   *slog.Logger
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

type Option func(*Ingestor)

func WithScorePolicy(policy submission.ScorePolicy) Option {
	return func(ing *Ingestor) { ing.policy = policy }
}

func WithLogger(log *slog.Logger) Option {
	return func(ing *Ingestor) { ing.log = log }
}

func New(subms submission.Store, sub channel.Subscriber, opts ...Option) *Ingestor {
	ing := &Ingestor{
		subms:  subms,
		sub:    sub,
		policy: submission.DefaultScorePolicy(),
		locks:  xsync.NewMapOf[int64, *keyedLock](),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Run subscribes to the results topic and blocks until ctx is done. No
// single message failure stops the loop.
func (ing *Ingestor) Run(ctx context.Context) error {
	ing.log.Info("result ingestor starting", slog.String("topic", api.TopicGradingResults))
	return ing.sub.Subscribe(ctx, api.TopicGradingResults, ing.Handle)
}

// Handle settles exactly one delivery. Malformed payloads and unknown
// submission ids are acked: redelivery cannot fix either, and the
// submission may simply have been deleted while the verdict was in
// flight. Anything else is nak'd so the broker retries it.
func (ing *Ingestor) Handle(ctx context.Context, d channel.Delivery) {
	var res api.GradingResult
	if err := json.Unmarshal(d.Body(), &res); err != nil {
		ing.log.Error("dropping malformed grading result", slog.Any("error", err))
		if err := d.Ack(); err != nil {
			ing.log.Error("failed to ack delivery", slog.Any("error", err))
		}
		return
	}

	subm, err := ing.ApplyResult(ctx, res.SubmissionID, res.CorrectTestCases)
	if submission.IsNotFound(err) {
		ing.log.Warn("grading result for unknown submission",
			slog.Int64("submission_id", res.SubmissionID))
		if err := d.Ack(); err != nil {
			ing.log.Error("failed to ack delivery", slog.Any("error", err))
		}
		return
	}
	if err != nil {
		ing.log.Error("failed to apply grading result",
			slog.Int64("submission_id", res.SubmissionID), slog.Any("error", err))
		if err := d.Nak(); err != nil {
			ing.log.Error("failed to nak delivery", slog.Any("error", err))
		}
		return
	}

	if err := d.Ack(); err != nil {
		ing.log.Error("failed to ack delivery", slog.Any("error", err))
		return
	}
	ing.log.Info("applied grading result",
		slog.Int64("submission_id", subm.ID),
		slog.Float64("score", *subm.Score),
		slog.String("status", string(subm.Status)))
}

// ApplyResult computes the score for a verdict and persists it together
// with the derived terminal status, in one store write. It applies
// unconditionally whatever the submission's current status, so a duplicate
// or stale verdict re-writes the same computed state instead of erroring.
func (ing *Ingestor) ApplyResult(ctx context.Context, submissionID int64, correctTestCases int64) (*submission.Submission, error) {
	kl := ing.acquire(submissionID)
	defer ing.release(submissionID, kl)

	subm, err := ing.subms.FindByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	subm.ApplyVerdict(ing.policy.Score(correctTestCases), ing.policy)
	saved, err := ing.subms.Save(ctx, subm)
	if err != nil {
		return nil, fmt.Errorf("failed to persist verdict for submission %d: %w", submissionID, err)
	}
	return saved, nil
}

// acquire takes the submission's lock, pinning its map entry. The ref
// count is mutated inside Compute, which xsync runs atomically per key.
func (ing *Ingestor) acquire(submissionID int64) *keyedLock {
	kl, _ := ing.locks.Compute(submissionID, func(old *keyedLock, loaded bool) (*keyedLock, bool) {
		if !loaded {
			old = &keyedLock{}
		}
		old.refs++
		return old, false
	})
	kl.mu.Lock()
	return kl
}

// release unlocks and drops the entry once no other verdict for the same
// submission is holding or awaiting it.
func (ing *Ingestor) release(submissionID int64, kl *keyedLock) {
	kl.mu.Unlock()
	ing.locks.Compute(submissionID, func(old *keyedLock, _ bool) (*keyedLock, bool) {
		old.refs--
		return old, old.refs == 0
	})
}
