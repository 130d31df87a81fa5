// Package store defines the PersistenceStore capability interface
// (spec.md §6) the rest of the core depends on, plus a MongoDB-backed
// implementation grounded in DemeterEye's api.App/mongo usage (app.go's
// collection wiring, handlers_fields.go's FindOneAndUpdate+$set+
// ReturnDocument(After) upsert idiom) and an in-memory fake for tests.
package store

import (
	"context"

	"github.com/demeterfield/pipeline/internal/models"
)

// PersistenceStore is the capability interface the Analysis Engine,
// Alert Engine, Planner and Orchestrator depend on (spec.md §6). The
// core never imports go.mongodb.org/mongo-driver directly.
type PersistenceStore interface {
	GetFieldsByFarm(ctx context.Context, farmID string) ([]models.FieldBoundary, error)
	ListFarmIDs(ctx context.Context) ([]string, error)
	GetLatestAnalysis(ctx context.Context, fieldID string) (*models.AnalysisResult, error)
	UpsertAnalysis(ctx context.Context, result models.AnalysisResult) error

	UpsertAlert(ctx context.Context, alert models.Alert) (models.Alert, bool, error)
	GetActiveAlertsByKind(ctx context.Context, fieldID string, kind models.AlertKind) ([]models.Alert, error)
	UpdateAlertState(ctx context.Context, alertID string, status models.AlertStatus, by, note string) (models.Alert, error)

	UpsertPlan(ctx context.Context, plan models.PrecisionPlan) error
	GetPlan(ctx context.Context, farmID, fieldID, season string) (*models.PrecisionPlan, error)

	GetAnalysisTrend(ctx context.Context, fieldID string, limit int) ([]models.AnalysisResult, error)
}
