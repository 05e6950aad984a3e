package schemas

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// StageTransitionRecord is append-only. DurationInPreviousStageHours is nil
// exactly when FromStageID is nil.
type StageTransitionRecord struct {
	ID                           bson.ObjectID  `json:"id" bson:"_id,omitempty"`
	CampaignID                   bson.ObjectID  `json:"campaignId" bson:"campaign_id"`
	EnrolledContactID            bson.ObjectID  `json:"enrolledContactId" bson:"enrolled_contact_id"`
	FromStageID                  *bson.ObjectID `json:"fromStageId" bson:"from_stage_id"`
	ToStageID                    bson.ObjectID  `json:"toStageId" bson:"to_stage_id"`
	Reason                       string         `json:"reason,omitempty" bson:"reason,omitempty"`
	Automatic                    bool           `json:"automatic" bson:"automatic"`
	ActorID                      string         `json:"actorId,omitempty" bson:"actor_id,omitempty"`
	DurationInPreviousStageHours *float64       `json:"durationInPreviousStageHours" bson:"duration_in_previous_stage_hours"`
	OccurredAt                   time.Time      `json:"occurredAt" bson:"occurred_at"`
}

// StageHistoryEntry is a transition record with stage names resolved for display.
type StageHistoryEntry struct {
	StageTransitionRecord `bson:",inline"`
	FromStageName         string `json:"fromStageName,omitempty"`
	ToStageName           string `json:"toStageName"`
}

// StageDurationStat sums the time contacts spent in a stage before leaving it.
type StageDurationStat struct {
	StageID    bson.ObjectID `bson:"_id"`
	TotalHours float64       `bson:"total_hours"`
	Samples    int64         `bson:"samples"`
}

// StageCount is the number of enrolled contacts currently on StageID; a nil
// StageID counts contacts that were never transitioned.
type StageCount struct {
	StageID *bson.ObjectID `bson:"_id"`
	Count   int64          `bson:"count"`
}
