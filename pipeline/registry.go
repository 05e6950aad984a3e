package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/spacearena/lead-pipeline/schemas"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Registry answers stage lookups and transition legality for campaigns.
// It never mutates contact state.
type Registry struct {
	stages StageStore
}

func NewRegistry(stages StageStore) *Registry {
	return &Registry{stages: stages}
}

// ListStages returns the campaign's active stages ordered by Order.
func (r *Registry) ListStages(ctx context.Context, campaignID bson.ObjectID) ([]schemas.Stage, error) {
	all, err := r.stages.ListStages(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}

	active := make([]schemas.Stage, 0, len(all))
	for _, stage := range all {
		if stage.CampaignID != campaignID || !stage.Active {
			continue
		}
		active = append(active, stage)
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Order < active[j].Order })

	if len(active) > 0 {
		if err := ValidateStages(active); err != nil {
			return nil, err
		}
	}
	return active, nil
}

// GetStage returns ErrNotFound for unknown, foreign or inactive stages.
func (r *Registry) GetStage(ctx context.Context, campaignID, stageID bson.ObjectID) (schemas.Stage, error) {
	stages, err := r.ListStages(ctx, campaignID)
	if err != nil {
		return schemas.Stage{}, err
	}
	for _, stage := range stages {
		if stage.ID == stageID {
			return stage, nil
		}
	}
	return schemas.Stage{}, NotFoundf("stage %s not found in campaign %s", stageID.Hex(), campaignID.Hex())
}

// CheckTransition explains why from -> to is illegal, or returns nil.
// A nil from is the contact's first transition.
func CheckTransition(from *schemas.Stage, to schemas.Stage) error {
	if !to.Active {
		return NotFoundf("stage %s is inactive", to.ID.Hex())
	}
	if from == nil {
		return nil
	}
	if from.CampaignID != to.CampaignID {
		return NotFoundf("stage %s belongs to another campaign", to.ID.Hex())
	}
	if from.ID == to.ID {
		return IllegalTransitionf("contact is already in stage %q", to.Name)
	}
	if from.IsFinal {
		return IllegalTransitionf("stage %q is final and cannot be left", from.Name)
	}
	return nil
}

// IsLegalTransition reports whether a contact on from may enter to.
func IsLegalTransition(from *schemas.Stage, to schemas.Stage) bool {
	return CheckTransition(from, to) == nil
}

// ValidateStages checks the invariants of a campaign's active stage set.
func ValidateStages(stages []schemas.Stage) error {
	seenOrder := make(map[int]bson.ObjectID, len(stages))
	hasInitial := false

	for _, stage := range stages {
		if !stage.Category.Valid() {
			return InvalidArgumentf("stage %q has unknown category %q", stage.Name, stage.Category)
		}
		if other, ok := seenOrder[stage.Order]; ok {
			return InvalidArgumentf("stages %s and %s share order %d", other.Hex(), stage.ID.Hex(), stage.Order)
		}
		seenOrder[stage.Order] = stage.ID

		if stage.ChargeOnEntry && stage.ChargeAmountCents <= 0 {
			return InvalidArgumentf("stage %q charges on entry without a positive amount", stage.Name)
		}
		if stage.IsInitial {
			hasInitial = true
		}
	}

	if !hasInitial {
		return InvalidArgumentf("campaign has no initial stage")
	}
	return nil
}

// lookup finds a stage of the campaign whether active or not.
func (r *Registry) lookup(ctx context.Context, campaignID, stageID bson.ObjectID) (schemas.Stage, bool, error) {
	all, err := r.stages.ListStages(ctx, campaignID)
	if err != nil {
		return schemas.Stage{}, false, fmt.Errorf("failed to list stages: %w", err)
	}
	for _, stage := range all {
		if stage.ID == stageID && stage.CampaignID == campaignID {
			return stage, true, nil
		}
	}
	return schemas.Stage{}, false, nil
}
