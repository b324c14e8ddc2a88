package api

import "github.com/google/uuid"

// Channel names the dispatcher and the external grading worker agree on.
// Routing keys carry the submission id so that messages for one submission
// stay ordered relative to each other; there is no global ordering.
const (
	TopicGradingRequests = "grading-requests"
	TopicGradingResults  = "grading-results"
)

const (
	MsgTypeGradingRequest = "grading_request"
	MsgTypeGradingResult  = "grading_result"
)

// Header is embedded in every message. MsgId is assigned by the sender and
// is only used for tracing; consumers dedupe on submission id, not on it.
type Header struct {
	MsgId   string `json:"msg_id"`
	MsgType string `json:"msg_type"`
}

// SubmissionRef is the snapshot of a submission that the worker grades.
// Later edits to the stored submission do not affect an in-flight request.
type SubmissionRef struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

type ReqTestCase struct {
	ID         int64  `json:"id"`
	Input      string `json:"input"`
	Output     string `json:"output"`
	Visibility string `json:"visibility"`
}

// GradingRequest is published to TopicGradingRequests. It is immutable once
// published and carries the full ordered test-case set of the problem at
// dispatch time.
type GradingRequest struct {
	Header
	Submission SubmissionRef `json:"submission"`
	TestCases  []ReqTestCase `json:"test_cases"`
}

func NewGradingRequest(subm SubmissionRef, tests []ReqTestCase) GradingRequest {
	return GradingRequest{
		Header: Header{
			MsgId:   uuid.NewString(),
			MsgType: MsgTypeGradingRequest,
		},
		Submission: subm,
		TestCases:  tests,
	}
}
