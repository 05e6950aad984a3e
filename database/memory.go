package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spacearena/lead-pipeline/pipeline"
	"github.com/spacearena/lead-pipeline/schemas"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// MemoryStore is an injected in-process store for development and tests.
// It satisfies the same contracts as MongoStore.
type MemoryStore struct {
	mu          sync.RWMutex
	stages      map[bson.ObjectID][]schemas.Stage
	contacts    map[bson.ObjectID]schemas.EnrolledContact
	transitions []schemas.StageTransitionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stages:   make(map[bson.ObjectID][]schemas.Stage),
		contacts: make(map[bson.ObjectID]schemas.EnrolledContact),
	}
}

// PutStage inserts or replaces a stage.
func (s *MemoryStore) PutStage(stage schemas.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.stages[stage.CampaignID]
	for i := range list {
		if list[i].ID == stage.ID {
			list[i] = stage
			return
		}
	}
	s.stages[stage.CampaignID] = append(list, stage)
}

// PutContact inserts or replaces an enrolled contact.
func (s *MemoryStore) PutContact(contact schemas.EnrolledContact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[contact.ID] = cloneContact(contact)
}

func (s *MemoryStore) ListStages(ctx context.Context, campaignID bson.ObjectID) ([]schemas.Stage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stages := append([]schemas.Stage(nil), s.stages[campaignID]...)
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })
	return stages, nil
}

func (s *MemoryStore) GetContact(ctx context.Context, campaignID, contactID bson.ObjectID) (schemas.EnrolledContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contact, ok := s.contacts[contactID]
	if !ok || contact.CampaignID != campaignID {
		return schemas.EnrolledContact{}, pipeline.NotFoundf("contact %s not found in campaign %s", contactID.Hex(), campaignID.Hex())
	}
	return cloneContact(contact), nil
}

func (s *MemoryStore) CompareAndSetStage(ctx context.Context, change pipeline.StageChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contact, ok := s.contacts[change.ContactID]
	if !ok || contact.CampaignID != change.CampaignID {
		return pipeline.NotFoundf("contact %s not found", change.ContactID.Hex())
	}
	if !equalStageID(contact.CurrentStageID, change.ExpectedStageID) || !equalTime(contact.LastTransitionAt, change.ExpectedLastTransitionAt) {
		return pipeline.ConflictErr("contact %s was moved by another request", change.ContactID.Hex())
	}

	contact.CurrentStageID = copyStageID(change.NewStageID)
	contact.LastTransitionAt = copyTime(change.NewLastTransitionAt)
	contact.EnrollmentStatus = change.NewEnrollmentStatus
	s.contacts[change.ContactID] = contact
	return nil
}

func (s *MemoryStore) CountByStage(ctx context.Context, campaignID bson.ObjectID) ([]schemas.StageCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStage := map[bson.ObjectID]int64{}
	var unassigned int64
	for _, contact := range s.contacts {
		if contact.CampaignID != campaignID {
			continue
		}
		if contact.CurrentStageID == nil {
			unassigned++
			continue
		}
		byStage[*contact.CurrentStageID]++
	}

	counts := make([]schemas.StageCount, 0, len(byStage)+1)
	for stageID, count := range byStage {
		counts = append(counts, schemas.StageCount{StageID: copyStageID(&stageID), Count: count})
	}
	if unassigned > 0 {
		counts = append(counts, schemas.StageCount{Count: unassigned})
	}
	return counts, nil
}

func (s *MemoryStore) AppendTransition(ctx context.Context, record schemas.StageTransitionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, record)
	return nil
}

func (s *MemoryStore) ListTransitions(ctx context.Context, campaignID, contactID bson.ObjectID) ([]schemas.StageTransitionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := []schemas.StageTransitionRecord{}
	for i := len(s.transitions) - 1; i >= 0; i-- {
		record := s.transitions[i]
		if record.CampaignID == campaignID && record.EnrolledContactID == contactID {
			records = append(records, record)
		}
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].OccurredAt.After(records[j].OccurredAt) })
	return records, nil
}

func (s *MemoryStore) StageDurationStats(ctx context.Context, campaignID bson.ObjectID) ([]schemas.StageDurationStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStage := map[bson.ObjectID]*schemas.StageDurationStat{}
	order := []bson.ObjectID{}
	for _, record := range s.transitions {
		if record.CampaignID != campaignID || record.FromStageID == nil || record.DurationInPreviousStageHours == nil {
			continue
		}
		stat, ok := byStage[*record.FromStageID]
		if !ok {
			stat = &schemas.StageDurationStat{StageID: *record.FromStageID}
			byStage[*record.FromStageID] = stat
			order = append(order, *record.FromStageID)
		}
		stat.TotalHours += *record.DurationInPreviousStageHours
		stat.Samples++
	}

	stats := make([]schemas.StageDurationStat, 0, len(order))
	for _, stageID := range order {
		stats = append(stats, *byStage[stageID])
	}
	return stats, nil
}

// TransitionCount returns how many records the ledger holds for a contact.
func (s *MemoryStore) TransitionCount(contactID bson.ObjectID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, record := range s.transitions {
		if record.EnrolledContactID == contactID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// MemoryJobStore keeps bulk progress in process.
type MemoryJobStore struct {
	mu      sync.Mutex
	jobs    map[string]map[string]bool
	targets map[string]string
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:    make(map[string]map[string]bool),
		targets: make(map[string]string),
	}
}

func (s *MemoryJobStore) BindTarget(ctx context.Context, jobID, target string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bound, ok := s.targets[jobID]; ok {
		return bound, nil
	}
	s.targets[jobID] = target
	return target, nil
}

func (s *MemoryJobStore) Completed(ctx context.Context, jobID string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := make(map[string]bool, len(s.jobs[jobID]))
	for id := range s.jobs[jobID] {
		done[id] = true
	}
	return done, nil
}

func (s *MemoryJobStore) MarkCompleted(ctx context.Context, jobID, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobs[jobID] == nil {
		s.jobs[jobID] = make(map[string]bool)
	}
	s.jobs[jobID][contactID] = true
	return nil
}

func cloneContact(c schemas.EnrolledContact) schemas.EnrolledContact {
	c.CurrentStageID = copyStageID(c.CurrentStageID)
	c.LastTransitionAt = copyTime(c.LastTransitionAt)
	return c
}

func copyStageID(id *bson.ObjectID) *bson.ObjectID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func equalStageID(a, b *bson.ObjectID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
