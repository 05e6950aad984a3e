package schemas

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	WARNING_TYPE_CHARGE_FAILED      = "charge_failed"
	WARNING_TYPE_VALIDATION_WARNING = "validation_warning"
)

type TransitionOptions struct {
	Reason    string
	Automatic bool
	ActorID   string
}

type ChargeWarning struct {
	AmountCents int64  `json:"amountCents"`
	Message     string `json:"message"`
}

// TransitionOutcome is returned for every accepted transition, charge warning included.
type TransitionOutcome struct {
	CampaignID      bson.ObjectID          `json:"campaignId"`
	ContactID       bson.ObjectID          `json:"contactId"`
	PreviousStageID *bson.ObjectID         `json:"previousStageId"`
	NewStageID      bson.ObjectID          `json:"newStageId"`
	OccurredAt      time.Time              `json:"occurredAt"`
	DurationHours   *float64               `json:"durationHours"`
	Automatic       bool                   `json:"automatic"`
	ActorID         string                 `json:"actorId,omitempty"`
	ChargeWarning   *ChargeWarning         `json:"chargeWarning,omitempty"`
	Record          *StageTransitionRecord `json:"-"`
}

type ChargeRequest struct {
	CampaignID  bson.ObjectID
	ContactID   bson.ObjectID
	StageID     bson.ObjectID
	AmountCents int64
	Description string
}

type ChargeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type BulkTransitionError struct {
	ContactID string `json:"contactId"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

type BulkChargeWarning struct {
	ContactID string        `json:"contactId"`
	Warning   ChargeWarning `json:"warning"`
}

type BulkTransitionResult struct {
	JobID          string                `json:"jobId"`
	CampaignID     string                `json:"campaignId"`
	SuccessCount   int                   `json:"successCount"`
	FailedCount    int                   `json:"failedCount"`
	TotalRequested int                   `json:"totalRequested"`
	Errors         []BulkTransitionError `json:"errors"`
	ChargeWarnings []BulkChargeWarning   `json:"chargeWarnings"`
}
