package schemas

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type FunnelStageSnapshot struct {
	StageID                   bson.ObjectID `json:"stageId"`
	StageName                 string        `json:"stageName"`
	Category                  StageCategory `json:"category"`
	ColorHint                 string        `json:"colorHint,omitempty"`
	Count                     int64         `json:"count"`
	PctOfTotal                float64       `json:"pctOfTotal"`
	ConversionFromPreviousPct *float64      `json:"conversionFromPreviousPct"`
	AvgDurationInStageHours   float64       `json:"avgDurationInStageHours"`
}

// FunnelSnapshot is derived on every request and never stored.
type FunnelSnapshot struct {
	CampaignID         bson.ObjectID         `json:"campaignId"`
	TotalContacts      int64                 `json:"totalContacts"`
	UnassignedContacts int64                 `json:"unassignedContacts"`
	PerStage           []FunnelStageSnapshot `json:"perStage"`
	GeneratedAt        time.Time             `json:"generatedAt"`
}
