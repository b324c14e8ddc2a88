package submission_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/programme-lv/grader/internal/submission"
)

func TestValidateFields(t *testing.T) {
	require.NoError(t, submission.ValidateFields("print(1)", "python"))

	err := submission.ValidateFields("", "python")
	require.Error(t, err)
	assert.True(t, submission.IsValidation(err))

	err = submission.ValidateFields("   ", "python")
	assert.True(t, submission.IsValidation(err))

	err = submission.ValidateFields("print(1)", "")
	assert.True(t, submission.IsValidation(err))

	tooLong := strings.Repeat("a", submission.MaxFieldLen+1)
	err = submission.ValidateFields(tooLong, "python")
	assert.True(t, submission.IsValidation(err))

	atLimit := strings.Repeat("a", submission.MaxFieldLen)
	require.NoError(t, submission.ValidateFields(atLimit, "python"))
}

func TestNewStartsPending(t *testing.T) {
	subm := submission.New(7, 3, "print(1)", "python")
	assert.Equal(t, submission.StatusPending, subm.Status)
	assert.Nil(t, subm.Score)
	assert.False(t, subm.SubmittedAt.IsZero())
	assert.Nil(t, subm.UpdatedAt)
}

func TestSetFieldsWhilePending(t *testing.T) {
	subm := submission.New(7, 3, "print(1)", "python")
	score := 40.0
	subm.Score = &score

	require.NoError(t, subm.SetFields("print(2)", "python3"))
	assert.Equal(t, "print(2)", subm.Code)
	assert.Equal(t, "python3", subm.Language)
	assert.Equal(t, submission.StatusPending, subm.Status)
	assert.Nil(t, subm.Score, "edit must clear the previous score")
	assert.NotNil(t, subm.UpdatedAt)
}

func TestSetFieldsOnTerminalIsConflict(t *testing.T) {
	for _, status := range []submission.Status{submission.StatusAccepted, submission.StatusRejected} {
		subm := submission.New(7, 3, "print(1)", "python")
		subm.Status = status

		err := subm.SetFields("print(2)", "python")
		require.Error(t, err)
		assert.True(t, submission.IsConflict(err))
		assert.Equal(t, "print(1)", subm.Code, "record must be left unchanged")
		assert.Equal(t, status, subm.Status)
	}
}

func TestSetFieldsInvalidLeavesRecordUnchanged(t *testing.T) {
	subm := submission.New(7, 3, "print(1)", "python")
	err := subm.SetFields("", "python")
	require.Error(t, err)
	assert.True(t, submission.IsValidation(err))
	assert.Equal(t, "print(1)", subm.Code)
}

func TestScorePolicy(t *testing.T) {
	policy := submission.DefaultScorePolicy()

	assert.Equal(t, 4.0, policy.Score(1))
	assert.Equal(t, 100.0, policy.Score(25))

	assert.Equal(t, submission.StatusAccepted, policy.StatusFor(0))
	assert.Equal(t, submission.StatusAccepted, policy.StatusFor(100))
	assert.Equal(t, submission.StatusRejected, policy.StatusFor(104))
	assert.Equal(t, submission.StatusRejected, policy.StatusFor(-4))

	custom := submission.ScorePolicy{PointsPerTest: 10}
	assert.Equal(t, 30.0, custom.Score(3))
}

func TestApplyVerdict(t *testing.T) {
	policy := submission.DefaultScorePolicy()

	subm := submission.New(7, 3, "print(1)", "python")
	subm.ApplyVerdict(policy.Score(1), policy)
	require.NotNil(t, subm.Score)
	assert.Equal(t, 4.0, *subm.Score)
	assert.Equal(t, submission.StatusAccepted, subm.Status)
	assert.NotNil(t, subm.UpdatedAt)

	// A verdict overwrites a terminal state; it does not conflict.
	subm.ApplyVerdict(policy.Score(26), policy)
	assert.Equal(t, 104.0, *subm.Score)
	assert.Equal(t, submission.StatusRejected, subm.Status)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, submission.StatusPending.Terminal())
	assert.True(t, submission.StatusAccepted.Terminal())
	assert.True(t, submission.StatusRejected.Terminal())
}
