package submission

import "context"

// Store is the durable record of submissions. Save inserts when ID is zero
// and updates otherwise, returning the persisted record; FindByID returns
// a *NotFoundError when the id is unknown.
type Store interface {
	Save(ctx context.Context, subm *Submission) (*Submission, error)
	FindByID(ctx context.Context, id int64) (*Submission, error)
	FindByProblemAndUser(ctx context.Context, problemID int64, userID int64) ([]Submission, error)
	Delete(ctx context.Context, id int64) error
	DeleteAllByProblemAndUser(ctx context.Context, problemID int64, userID int64) error
}
