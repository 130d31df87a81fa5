package store

import (
	"context"
	"sort"
	"time"

	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is the production PersistenceStore, following the
// App.{db,collection} wiring of DemeterEye's api.App and its
// FindOneAndUpdate upsert idiom.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	fields   *mongo.Collection
	analyses *mongo.Collection
	alerts   *mongo.Collection
	plans    *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errkind.New(errkind.Unavailable, "", err)
	}
	db := client.Database(database)

	s := &MongoStore{
		client:   client,
		db:       db,
		fields:   db.Collection("fields"),
		analyses: db.Collection("analyses"),
		alerts:   db.Collection("alerts"),
		plans:    db.Collection("plans"),
	}

	if _, err := s.fields.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "farmId", Value: 1}},
	}); err != nil {
		return nil, errkind.New(errkind.Unavailable, "", err)
	}
	if _, err := s.analyses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "fieldId", Value: 1}, {Key: "analysisDate", Value: -1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, errkind.New(errkind.Unavailable, "", err)
	}
	if _, err := s.alerts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "fieldId", Value: 1}, {Key: "kind", Value: 1}, {Key: "status", Value: 1}},
	}); err != nil {
		return nil, errkind.New(errkind.Unavailable, "", err)
	}
	if _, err := s.plans.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "farmId", Value: 1}, {Key: "fieldId", Value: 1}, {Key: "season", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, errkind.New(errkind.Unavailable, "", err)
	}

	return s, nil
}

func (s *MongoStore) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *MongoStore) GetFieldsByFarm(ctx context.Context, farmID string) ([]models.FieldBoundary, error) {
	cur, err := s.fields.Find(ctx, bson.M{"farmId": farmID})
	if err != nil {
		return nil, errkind.New(errkind.Transient, "", err)
	}
	defer cur.Close(ctx)

	var out []models.FieldBoundary
	if err := cur.All(ctx, &out); err != nil {
		return nil, errkind.New(errkind.Transient, "", err)
	}
	return out, nil
}

func (s *MongoStore) ListFarmIDs(ctx context.Context) ([]string, error) {
	raw, err := s.fields.Distinct(ctx, "farmId", bson.M{})
	if err != nil {
		return nil, errkind.New(errkind.Transient, "", err)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *MongoStore) GetLatestAnalysis(ctx context.Context, fieldID string) (*models.AnalysisResult, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "analysisDate", Value: -1}})
	var out models.AnalysisResult
	err := s.analyses.FindOne(ctx, bson.M{"fieldId": fieldID}, opts).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errkind.New(errkind.Transient, "", err)
	}
	return &out, nil
}

func (s *MongoStore) UpsertAnalysis(ctx context.Context, result models.AnalysisResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	filter := bson.M{"fieldId": result.FieldID, "analysisDate": result.AnalysisDate}
	update := bson.M{"$set": result}
	_, err := s.analyses.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return errkind.New(errkind.Transient, "", err)
	}
	return nil
}

func (s *MongoStore) UpsertAlert(ctx context.Context, alert models.Alert) (models.Alert, bool, error) {
	if alert.ID == "" {
		return models.Alert{}, false, errkind.New(errkind.InvalidInput, "alert.ID required", nil)
	}
	res := s.alerts.FindOneAndUpdate(
		ctx,
		bson.M{"_id": alert.ID},
		bson.M{"$set": alert},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)
	var out models.Alert
	isNew := false
	if err := res.Decode(&out); err != nil {
		if err == mongo.ErrNoDocuments {
			out = alert
			isNew = true
		} else {
			return models.Alert{}, false, errkind.New(errkind.Transient, "", err)
		}
	}
	return out, isNew, nil
}

func (s *MongoStore) GetActiveAlertsByKind(ctx context.Context, fieldID string, kind models.AlertKind) ([]models.Alert, error) {
	cur, err := s.alerts.Find(ctx, bson.M{
		"fieldId": fieldID,
		"kind":    kind,
		"status":  bson.M{"$in": []models.AlertStatus{models.AlertStatusActive, models.AlertStatusAcknowledged}},
	})
	if err != nil {
		return nil, errkind.New(errkind.Transient, "", err)
	}
	defer cur.Close(ctx)

	var out []models.Alert
	if err := cur.All(ctx, &out); err != nil {
		return nil, errkind.New(errkind.Transient, "", err)
	}
	return out, nil
}

func (s *MongoStore) UpdateAlertState(ctx context.Context, alertID string, status models.AlertStatus, by, note string) (models.Alert, error) {
	set := bson.M{"status": status}
	switch status {
	case models.AlertStatusAcknowledged:
		set["acknowledgedBy"] = by
	case models.AlertStatusResolved, models.AlertStatusFalsePositive:
		set["resolvedBy"] = by
		set["resolutionNote"] = note
		now := time.Now().UTC()
		set["resolvedAt"] = now
	}

	res := s.alerts.FindOneAndUpdate(
		ctx,
		bson.M{"_id": alertID},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var out models.Alert
	if err := res.Decode(&out); err != nil {
		if err == mongo.ErrNoDocuments {
			return models.Alert{}, errkind.New(errkind.NotFound, "alert not found", err)
		}
		return models.Alert{}, errkind.New(errkind.Transient, "", err)
	}
	return out, nil
}

func (s *MongoStore) UpsertPlan(ctx context.Context, plan models.PrecisionPlan) error {
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	filter := bson.M{"farmId": plan.FarmID, "fieldId": plan.FieldID, "season": plan.Season}
	_, err := s.plans.UpdateOne(ctx, filter, bson.M{"$set": plan}, options.Update().SetUpsert(true))
	if err != nil {
		return errkind.New(errkind.Transient, "", err)
	}
	return nil
}

func (s *MongoStore) GetPlan(ctx context.Context, farmID, fieldID, season string) (*models.PrecisionPlan, error) {
	var out models.PrecisionPlan
	err := s.plans.FindOne(ctx, bson.M{"farmId": farmID, "fieldId": fieldID, "season": season}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, errkind.New(errkind.NotFound, fieldID, nil)
	}
	if err != nil {
		return nil, errkind.New(errkind.Transient, fieldID, err)
	}
	return &out, nil
}

func (s *MongoStore) GetAnalysisTrend(ctx context.Context, fieldID string, limit int) ([]models.AnalysisResult, error) {
	opts := options.Find().SetSort(bson.D{{Key: "analysisDate", Value: -1}}).SetLimit(int64(limit))
	cur, err := s.analyses.Find(ctx, bson.M{"fieldId": fieldID}, opts)
	if err != nil {
		return nil, errkind.New(errkind.Transient, "", err)
	}
	defer cur.Close(ctx)

	var out []models.AnalysisResult
	if err := cur.All(ctx, &out); err != nil {
		return nil, errkind.New(errkind.Transient, "", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnalysisDate < out[j].AnalysisDate })
	return out, nil
}
