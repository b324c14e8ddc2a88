package ingest_test

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/channel"
	"github.com/programme-lv/grader/internal/channel/memchan"
	"github.com/programme-lv/grader/internal/dispatch"
	"github.com/programme-lv/grader/internal/ingest"
	"github.com/programme-lv/grader/internal/problem"
	"github.com/programme-lv/grader/internal/store/memstore"
	"github.com/programme-lv/grader/internal/submission"
)

type fakeDelivery struct {
	body  []byte
	acked bool
	naked bool
}

func (d *fakeDelivery) Body() []byte { return d.body }
func (d *fakeDelivery) Ack() error   { d.acked = true; return nil }
func (d *fakeDelivery) Nak() error   { d.naked = true; return nil }

func pendingSubmission(t *testing.T, store *memstore.Store) *submission.Submission {
	t.Helper()
	subm, err := store.Save(context.Background(), submission.New(1, 42, "print(1)", "python"))
	require.NoError(t, err)
	return subm
}

func TestApplyResultAccepted(t *testing.T) {
	store := memstore.New()
	ing := ingest.New(store, memchan.New(8))
	subm := pendingSubmission(t, store)

	applied, err := ing.ApplyResult(context.Background(), subm.ID, 20)
	require.NoError(t, err)
	require.NotNil(t, applied.Score)
	assert.Equal(t, 80.0, *applied.Score)
	assert.Equal(t, submission.StatusAccepted, applied.Status)
}

func TestApplyResultZeroCorrectIsStillAccepted(t *testing.T) {
	store := memstore.New()
	ing := ingest.New(store, memchan.New(8))
	subm := pendingSubmission(t, store)

	applied, err := ing.ApplyResult(context.Background(), subm.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, *applied.Score)
	assert.Equal(t, submission.StatusAccepted, applied.Status)
}

func TestApplyResultOutOfRangeIsRejected(t *testing.T) {
	store := memstore.New()
	ing := ingest.New(store, memchan.New(8))
	subm := pendingSubmission(t, store)

	// 26 correct tests * 4 points = 104, outside [0, 100].
	applied, err := ing.ApplyResult(context.Background(), subm.ID, 26)
	require.NoError(t, err)
	assert.Equal(t, 104.0, *applied.Score)
	assert.Equal(t, submission.StatusRejected, applied.Status)
}

func TestApplyResultIsIdempotent(t *testing.T) {
	store := memstore.New()
	ing := ingest.New(store, memchan.New(8))
	subm := pendingSubmission(t, store)

	first, err := ing.ApplyResult(context.Background(), subm.ID, 10)
	require.NoError(t, err)
	second, err := ing.ApplyResult(context.Background(), subm.ID, 10)
	require.NoError(t, err)

	assert.Equal(t, *first.Score, *second.Score)
	assert.Equal(t, first.Status, second.Status)
}

func TestApplyResultCustomPolicy(t *testing.T) {
	store := memstore.New()
	ing := ingest.New(store, memchan.New(8),
		ingest.WithScorePolicy(submission.ScorePolicy{PointsPerTest: 10}))
	subm := pendingSubmission(t, store)

	applied, err := ing.ApplyResult(context.Background(), subm.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 70.0, *applied.Score)
	assert.Equal(t, submission.StatusAccepted, applied.Status)
}

func TestApplyResultUnknownSubmission(t *testing.T) {
	store := memstore.New()
	ing := ingest.New(store, memchan.New(8))

	_, err := ing.ApplyResult(context.Background(), 404, 1)
	require.Error(t, err)
	assert.True(t, submission.IsNotFound(err))
}

func TestApplyResultSerializesPerSubmission(t *testing.T) {
	store := memstore.New()
	ing := ingest.New(store, memchan.New(8))
	subm := pendingSubmission(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ing.ApplyResult(context.Background(), subm.ID, 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := store.FindByID(context.Background(), subm.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, *stored.Score)
	assert.Equal(t, submission.StatusAccepted, stored.Status)
}

func resultBody(t *testing.T, submissionID int64, correct int64) []byte {
	t.Helper()
	body, err := json.Marshal(api.NewGradingResult(submissionID, correct))
	require.NoError(t, err)
	return body
}

func TestHandleAcksAppliedResult(t *testing.T) {
	store := memstore.New()
	ing := ingest.New(store, memchan.New(8))
	subm := pendingSubmission(t, store)

	d := &fakeDelivery{body: resultBody(t, subm.ID, 1)}
	ing.Handle(context.Background(), d)
	assert.True(t, d.acked)
	assert.False(t, d.naked)

	stored, err := store.FindByID(context.Background(), subm.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, *stored.Score)
}

func TestHandleAcksUnknownSubmission(t *testing.T) {
	store := memstore.New()
	ing := ingest.New(store, memchan.New(8))

	d := &fakeDelivery{body: resultBody(t, 404, 1)}
	ing.Handle(context.Background(), d)
	assert.True(t, d.acked, "a deleted submission's verdict is dropped, not retried")
	assert.False(t, d.naked)
}

func TestHandleAcksMalformedPayload(t *testing.T) {
	store := memstore.New()
	ing := ingest.New(store, memchan.New(8))

	d := &fakeDelivery{body: []byte("{not json")}
	ing.Handle(context.Background(), d)
	assert.True(t, d.acked, "redelivery cannot fix a malformed payload")
	assert.False(t, d.naked)
}

func TestHandleNaksStoreFailure(t *testing.T) {
	store := memstore.New()
	subm := pendingSubmission(t, store)
	failing := &failingStore{Store: store}
	ing := ingest.New(failing, memchan.New(8))

	d := &fakeDelivery{body: resultBody(t, subm.ID, 1)}
	ing.Handle(context.Background(), d)
	assert.False(t, d.acked)
	assert.True(t, d.naked, "transient failures rely on broker redelivery")
}

type failingStore struct {
	*memstore.Store
}

func (s *failingStore) Save(ctx context.Context, subm *submission.Submission) (*submission.Submission, error) {
	return nil, context.DeadlineExceeded
}

// Full loop: dispatch over the in-process channel, grade with a stub
// worker, ingest the verdict.
func TestPipelineEndToEnd(t *testing.T) {
	store := memstore.New()
	queue := memchan.New(16)
	store.AddProblem(problem.Problem{ID: 1, Title: "Echo", Difficulty: problem.DifficultyEasy})
	store.AddTestCase(problem.TestCase{ProblemID: 1, Input: "1", Output: "1", Visibility: problem.VisibilityPublic})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stub grading worker: every test case passes.
	go func() {
		_ = queue.Subscribe(ctx, api.TopicGradingRequests, func(ctx context.Context, d channel.Delivery) {
			var req api.GradingRequest
			require.NoError(t, json.Unmarshal(d.Body(), &req))
			body := resultBody(t, req.Submission.ID, int64(len(req.TestCases)))
			key := strconv.FormatInt(req.Submission.ID, 10)
			require.NoError(t, queue.Publish(ctx, api.TopicGradingResults, key, body))
			require.NoError(t, d.Ack())
		})
	}()

	ing := ingest.New(store, queue)
	go func() { _ = ing.Run(ctx) }()

	d := dispatch.New(store, store, store, queue)
	subm, err := d.Dispatch(ctx, 1, 42, "print(1)", "python")
	require.NoError(t, err)
	assert.Equal(t, submission.StatusPending, subm.Status)

	require.Eventually(t, func() bool {
		stored, err := store.FindByID(ctx, subm.ID)
		if err != nil {
			return false
		}
		return stored.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := store.FindByID(ctx, subm.ID)
	require.NoError(t, err)
	assert.Equal(t, submission.StatusAccepted, stored.Status)
	require.NotNil(t, stored.Score)
	assert.Equal(t, 4.0, *stored.Score)
}
