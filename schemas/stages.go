package schemas

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type StageCategory string

const (
	STAGE_CATEGORY_NOVO         StageCategory = "novo"
	STAGE_CATEGORY_QUALIFICACAO StageCategory = "qualificacao"
	STAGE_CATEGORY_NEGOCIACAO   StageCategory = "negociacao"
	STAGE_CATEGORY_GANHO        StageCategory = "ganho"
	STAGE_CATEGORY_PERDIDO      StageCategory = "perdido"
	STAGE_CATEGORY_CUSTOM       StageCategory = "custom"
)

var stageCategories = []StageCategory{
	STAGE_CATEGORY_NOVO,
	STAGE_CATEGORY_QUALIFICACAO,
	STAGE_CATEGORY_NEGOCIACAO,
	STAGE_CATEGORY_GANHO,
	STAGE_CATEGORY_PERDIDO,
	STAGE_CATEGORY_CUSTOM,
}

func (c StageCategory) Valid() bool {
	for _, known := range stageCategories {
		if c == known {
			return true
		}
	}
	return false
}

func ParseStageCategory(s string) (StageCategory, error) {
	c := StageCategory(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown stage category %q", s)
	}
	return c, nil
}

func (c *StageCategory) UnmarshalText(text []byte) error {
	parsed, err := ParseStageCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Stage is one step of a campaign funnel. Stages are authored by the campaign
// configuration screens and are read-only here.
type Stage struct {
	ID                bson.ObjectID `json:"id" bson:"_id,omitempty"`
	CampaignID        bson.ObjectID `json:"campaignId" bson:"campaign_id"`
	Name              string        `json:"name" bson:"name"`
	Category          StageCategory `json:"category" bson:"category"`
	ColorHint         string        `json:"colorHint,omitempty" bson:"color_hint,omitempty"`
	Order             int           `json:"order" bson:"order"`
	IsInitial         bool          `json:"isInitial" bson:"is_initial"`
	IsFinal           bool          `json:"isFinal" bson:"is_final"`
	ChargeOnEntry     bool          `json:"chargeOnEntry" bson:"charge_on_entry"`
	ChargeAmountCents int64         `json:"chargeAmountCents,omitempty" bson:"charge_amount_cents,omitempty"`
	ChargeDescription string        `json:"chargeDescription,omitempty" bson:"charge_description,omitempty"`
	Active            bool          `json:"active" bson:"active"`
	CreatedAt         time.Time     `json:"createdAt" bson:"created_at,omitempty"`
	UpdatedAt         time.Time     `json:"updatedAt" bson:"updated_at,omitempty"`
}
