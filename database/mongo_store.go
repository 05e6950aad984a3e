package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/spacearena/lead-pipeline/pipeline"
	"github.com/spacearena/lead-pipeline/schemas"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore keeps stages, enrolled contacts and the transition ledger in MongoDB.
type MongoStore struct {
	stages      *mongo.Collection
	contacts    *mongo.Collection
	transitions *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		stages:      db.Collection(COLLECTION_CAMPAIGN_STAGES),
		contacts:    db.Collection(COLLECTION_CAMPAIGN_CONTACTS),
		transitions: db.Collection(COLLECTION_STAGE_TRANSITIONS),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.stages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "campaign_id", Value: 1}, {Key: "order", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create stage index: %w", err)
	}

	_, err = s.contacts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "campaign_id", Value: 1}, {Key: "current_stage_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create contact index: %w", err)
	}

	_, err = s.transitions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "enrolled_contact_id", Value: 1}, {Key: "occurred_at", Value: -1}}},
		{Keys: bson.D{{Key: "campaign_id", Value: 1}, {Key: "from_stage_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create transition indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) ListStages(ctx context.Context, campaignID bson.ObjectID) ([]schemas.Stage, error) {
	filter := bson.D{{Key: "campaign_id", Value: campaignID}}
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}})

	cursor, err := s.stages.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	stages := []schemas.Stage{}
	if err := cursor.All(ctx, &stages); err != nil {
		return nil, err
	}
	return stages, nil
}

func (s *MongoStore) GetContact(ctx context.Context, campaignID, contactID bson.ObjectID) (schemas.EnrolledContact, error) {
	filter := bson.D{{Key: "_id", Value: contactID}, {Key: "campaign_id", Value: campaignID}}

	contact := schemas.EnrolledContact{}
	err := s.contacts.FindOne(ctx, filter).Decode(&contact)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return schemas.EnrolledContact{}, pipeline.NotFoundf("contact %s not found in campaign %s", contactID.Hex(), campaignID.Hex())
	}
	if err != nil {
		return schemas.EnrolledContact{}, fmt.Errorf("failed to find contact: %w", err)
	}
	return contact, nil
}

func (s *MongoStore) CompareAndSetStage(ctx context.Context, change pipeline.StageChange) error {
	filter := bson.D{
		{Key: "_id", Value: change.ContactID},
		{Key: "campaign_id", Value: change.CampaignID},
		{Key: "current_stage_id", Value: change.ExpectedStageID},
		{Key: "last_transition_at", Value: change.ExpectedLastTransitionAt},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "current_stage_id", Value: change.NewStageID},
		{Key: "last_transition_at", Value: change.NewLastTransitionAt},
		{Key: "enrollment_status", Value: change.NewEnrollmentStatus},
	}}}

	result, err := s.contacts.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update contact stage: %w", err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	exists, err := s.contacts.CountDocuments(ctx, bson.D{
		{Key: "_id", Value: change.ContactID},
		{Key: "campaign_id", Value: change.CampaignID},
	})
	if err != nil {
		return fmt.Errorf("failed to check contact: %w", err)
	}
	if exists == 0 {
		return pipeline.NotFoundf("contact %s not found", change.ContactID.Hex())
	}
	return pipeline.ConflictErr("contact %s was moved by another request", change.ContactID.Hex())
}

func (s *MongoStore) CountByStage(ctx context.Context, campaignID bson.ObjectID) ([]schemas.StageCount, error) {
	pipe := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "campaign_id", Value: campaignID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$current_stage_id"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := s.contacts.Aggregate(ctx, pipe)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	counts := []schemas.StageCount{}
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

func (s *MongoStore) AppendTransition(ctx context.Context, record schemas.StageTransitionRecord) error {
	if _, err := s.transitions.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to insert transition: %w", err)
	}
	return nil
}

func (s *MongoStore) ListTransitions(ctx context.Context, campaignID, contactID bson.ObjectID) ([]schemas.StageTransitionRecord, error) {
	filter := bson.D{
		{Key: "campaign_id", Value: campaignID},
		{Key: "enrolled_contact_id", Value: contactID},
	}
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := s.transitions.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []schemas.StageTransitionRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *MongoStore) StageDurationStats(ctx context.Context, campaignID bson.ObjectID) ([]schemas.StageDurationStat, error) {
	pipe := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "campaign_id", Value: campaignID},
			{Key: "from_stage_id", Value: bson.D{{Key: "$ne", Value: nil}}},
			{Key: "duration_in_previous_stage_hours", Value: bson.D{{Key: "$ne", Value: nil}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$from_stage_id"},
			{Key: "total_hours", Value: bson.D{{Key: "$sum", Value: "$duration_in_previous_stage_hours"}}},
			{Key: "samples", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := s.transitions.Aggregate(ctx, pipe)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	stats := []schemas.StageDurationStat{}
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// Ping reports whether the backing database answers.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.contacts.Database().Client().Ping(ctx, nil)
}
