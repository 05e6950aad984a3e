package pipeline

import (
	"context"
	"time"

	"github.com/spacearena/lead-pipeline/schemas"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// StageStore reads a campaign's configured stages.
type StageStore interface {
	// ListStages returns every stage of the campaign, active or not, in any order.
	ListStages(ctx context.Context, campaignID bson.ObjectID) ([]schemas.Stage, error)
}

// StageChange is a compare-and-set request on an enrolled contact. The update
// applies only while the stored current stage and last transition time still
// equal the Expected values.
type StageChange struct {
	CampaignID               bson.ObjectID
	ContactID                bson.ObjectID
	ExpectedStageID          *bson.ObjectID
	ExpectedLastTransitionAt *time.Time
	NewStageID               *bson.ObjectID
	NewLastTransitionAt      *time.Time
	NewEnrollmentStatus      schemas.EnrollmentStatus
}

type ContactStore interface {
	// GetContact returns ErrNotFound when the contact does not exist in the campaign.
	GetContact(ctx context.Context, campaignID, contactID bson.ObjectID) (schemas.EnrolledContact, error)
	// CompareAndSetStage returns ErrConcurrencyConflict when the expectation no longer holds.
	CompareAndSetStage(ctx context.Context, change StageChange) error
	CountByStage(ctx context.Context, campaignID bson.ObjectID) ([]schemas.StageCount, error)
}

// HistoryStore is the append-only transition ledger.
type HistoryStore interface {
	AppendTransition(ctx context.Context, record schemas.StageTransitionRecord) error
	// ListTransitions returns the contact's records, most recent first.
	ListTransitions(ctx context.Context, campaignID, contactID bson.ObjectID) ([]schemas.StageTransitionRecord, error)
	StageDurationStats(ctx context.Context, campaignID bson.ObjectID) ([]schemas.StageDurationStat, error)
}

// ChargeGateway debits the campaign owner when a contact enters a charging
// stage. Business refusals come back as a failed ChargeResult; a returned
// error is a transport problem and is handled the same way.
type ChargeGateway interface {
	Charge(ctx context.Context, req schemas.ChargeRequest) (schemas.ChargeResult, error)
}

// Locker serializes work on a key. The returned unlock func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Observer is told about every accepted transition after its charge attempt.
type Observer interface {
	TransitionApplied(ctx context.Context, outcome schemas.TransitionOutcome)
}

// ChargeObserver is an optional Observer extension told about every charge attempt.
type ChargeObserver interface {
	ChargeAttempted(ctx context.Context, outcome schemas.TransitionOutcome, succeeded bool)
}

// RejectionObserver is an optional Observer extension told about every hard failure.
type RejectionObserver interface {
	TransitionRejected(ctx context.Context, code Code)
}

// JobStore keeps per-contact progress of bulk jobs so an interrupted job can be resumed.
type JobStore interface {
	// Completed returns the contact ids already applied for the job.
	Completed(ctx context.Context, jobID string) (map[string]bool, error)
	MarkCompleted(ctx context.Context, jobID, contactID string) error
	// BindTarget records target for the job unless one is already recorded,
	// and returns the recorded target.
	BindTarget(ctx context.Context, jobID, target string) (string, error)
}
