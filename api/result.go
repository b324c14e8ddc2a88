package api

import "github.com/google/uuid"

// GradingResult is what the worker reports back on TopicGradingResults:
// how many of the request's test cases the submission passed. The channel
// is at-least-once, so the same result may be delivered more than once.
type GradingResult struct {
	Header
	SubmissionID     int64 `json:"submission_id"`
	CorrectTestCases int64 `json:"correct_test_cases"`
}

func NewGradingResult(submissionID int64, correct int64) GradingResult {
	return GradingResult{
		Header: Header{
			MsgId:   uuid.NewString(),
			MsgType: MsgTypeGradingResult,
		},
		SubmissionID:     submissionID,
		CorrectTestCases: correct,
	}
}
