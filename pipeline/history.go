package pipeline

import (
	"context"
	"fmt"

	"github.com/spacearena/lead-pipeline/schemas"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type HistoryReader struct {
	stages   StageStore
	contacts ContactStore
	history  HistoryStore
}

func NewHistoryReader(stages StageStore, contacts ContactStore, history HistoryStore) *HistoryReader {
	return &HistoryReader{stages: stages, contacts: contacts, history: history}
}

// StageHistory lists a contact's transitions most recent first, with stage
// names resolved. Deactivated stages keep their names.
func (h *HistoryReader) StageHistory(ctx context.Context, campaignID, contactID bson.ObjectID) ([]schemas.StageHistoryEntry, error) {
	if _, err := h.contacts.GetContact(ctx, campaignID, contactID); err != nil {
		return nil, err
	}

	records, err := h.history.ListTransitions(ctx, campaignID, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}

	stages, err := h.stages.ListStages(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	names := make(map[bson.ObjectID]string, len(stages))
	for _, stage := range stages {
		names[stage.ID] = stage.Name
	}

	entries := make([]schemas.StageHistoryEntry, 0, len(records))
	for _, record := range records {
		entry := schemas.StageHistoryEntry{
			StageTransitionRecord: record,
			ToStageName:           names[record.ToStageID],
		}
		if record.FromStageID != nil {
			entry.FromStageName = names[*record.FromStageID]
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
