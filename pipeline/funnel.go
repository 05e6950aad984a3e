package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spacearena/lead-pipeline/schemas"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// FunnelAggregator derives funnel snapshots from current assignments and
// history. It takes no locks; a snapshot is a best-effort view.
type FunnelAggregator struct {
	registry *Registry
	contacts ContactStore
	history  HistoryStore
	now      func() time.Time
}

func NewFunnelAggregator(registry *Registry, contacts ContactStore, history HistoryStore) *FunnelAggregator {
	return &FunnelAggregator{
		registry: registry,
		contacts: contacts,
		history:  history,
		now:      time.Now,
	}
}

func (a *FunnelAggregator) ComputeFunnel(ctx context.Context, campaignID bson.ObjectID) (schemas.FunnelSnapshot, error) {
	stages, err := a.registry.ListStages(ctx, campaignID)
	if err != nil {
		return schemas.FunnelSnapshot{}, err
	}

	counts, err := a.contacts.CountByStage(ctx, campaignID)
	if err != nil {
		return schemas.FunnelSnapshot{}, fmt.Errorf("failed to count contacts by stage: %w", err)
	}

	durations, err := a.history.StageDurationStats(ctx, campaignID)
	if err != nil {
		return schemas.FunnelSnapshot{}, fmt.Errorf("failed to load stage durations: %w", err)
	}

	byStage := make(map[bson.ObjectID]int64, len(counts))
	var unassigned int64
	for _, c := range counts {
		if c.StageID == nil {
			unassigned += c.Count
			continue
		}
		byStage[*c.StageID] += c.Count
	}

	durationByStage := make(map[bson.ObjectID]schemas.StageDurationStat, len(durations))
	for _, d := range durations {
		durationByStage[d.StageID] = d
	}

	snapshot := schemas.FunnelSnapshot{
		CampaignID:  campaignID,
		PerStage:    make([]schemas.FunnelStageSnapshot, 0, len(stages)),
		GeneratedAt: a.now().UTC(),
	}

	listed := make(map[bson.ObjectID]bool, len(stages))
	for _, stage := range stages {
		listed[stage.ID] = true
		snapshot.TotalContacts += byStage[stage.ID]
	}
	for stageID, count := range byStage {
		if !listed[stageID] {
			unassigned += count
		}
	}
	snapshot.UnassignedContacts = unassigned

	for i, stage := range stages {
		count := byStage[stage.ID]
		entry := schemas.FunnelStageSnapshot{
			StageID:   stage.ID,
			StageName: stage.Name,
			Category:  stage.Category,
			ColorHint: stage.ColorHint,
			Count:     count,
		}

		if snapshot.TotalContacts > 0 {
			entry.PctOfTotal = round2(float64(count) / float64(snapshot.TotalContacts) * 100)
		}

		if i > 0 {
			if previous := byStage[stages[i-1].ID]; previous > 0 {
				conversion := round2(float64(count) / float64(previous) * 100)
				entry.ConversionFromPreviousPct = &conversion
			}
		}

		if stat, ok := durationByStage[stage.ID]; ok && stat.Samples > 0 {
			entry.AvgDurationInStageHours = round2(stat.TotalHours / float64(stat.Samples))
		}

		snapshot.PerStage = append(snapshot.PerStage, entry)
	}

	return snapshot, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
