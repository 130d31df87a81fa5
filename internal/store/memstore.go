package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/models"
)

// MemStore is an in-memory PersistenceStore used by package tests. It
// mirrors MongoStore's upsert semantics without a server dependency.
type MemStore struct {
	mu sync.Mutex

	fields    map[string][]models.FieldBoundary // keyed by farmId
	analyses  map[string]models.AnalysisResult   // keyed by AnalysisResult.Key()
	alerts    map[string]models.Alert            // keyed by alert.ID
	plans     map[string]models.PrecisionPlan    // keyed by PrecisionPlan.Key()
}

func NewMemStore() *MemStore {
	return &MemStore{
		fields:   make(map[string][]models.FieldBoundary),
		analyses: make(map[string]models.AnalysisResult),
		alerts:   make(map[string]models.Alert),
		plans:    make(map[string]models.PrecisionPlan),
	}
}

// SeedFields lets tests populate the farm→fields index directly.
func (m *MemStore) SeedFields(farmID string, fields []models.FieldBoundary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fields[farmID] = fields
}

func (m *MemStore) GetFieldsByFarm(ctx context.Context, farmID string) ([]models.FieldBoundary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.FieldBoundary(nil), m.fields[farmID]...), nil
}

func (m *MemStore) ListFarmIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.fields))
	for farmID := range m.fields {
		out = append(out, farmID)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) GetLatestAnalysis(ctx context.Context, fieldID string) (*models.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.AnalysisResult
	for _, a := range m.analyses {
		if a.FieldID != fieldID {
			continue
		}
		if latest == nil || a.AnalysisDate > latest.AnalysisDate {
			cp := a
			latest = &cp
		}
	}
	return latest, nil
}

func (m *MemStore) UpsertAnalysis(ctx context.Context, result models.AnalysisResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.analyses[result.Key()] = result
	return nil
}

func (m *MemStore) UpsertAlert(ctx context.Context, alert models.Alert) (models.Alert, bool, error) {
	if alert.ID == "" {
		return models.Alert{}, false, errkind.New(errkind.InvalidInput, "alert.ID required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, existed := m.alerts[alert.ID]
	m.alerts[alert.ID] = alert
	return alert, !existed, nil
}

func (m *MemStore) GetActiveAlertsByKind(ctx context.Context, fieldID string, kind models.AlertKind) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Alert
	for _, a := range m.alerts {
		if a.FieldID != fieldID || a.Kind != kind {
			continue
		}
		if a.Status == models.AlertStatusActive || a.Status == models.AlertStatusAcknowledged {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, nil
}

func (m *MemStore) UpdateAlertState(ctx context.Context, alertID string, status models.AlertStatus, by, note string) (models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[alertID]
	if !ok {
		return models.Alert{}, errkind.New(errkind.NotFound, alertID, nil)
	}
	a.Status = status
	switch status {
	case models.AlertStatusAcknowledged:
		a.AcknowledgedBy = by
	case models.AlertStatusResolved, models.AlertStatusFalsePositive:
		a.ResolvedBy = by
		a.ResolutionNote = note
		now := time.Now().UTC()
		a.ResolvedAt = &now
	}
	m.alerts[alertID] = a
	return a, nil
}

func (m *MemStore) UpsertPlan(ctx context.Context, plan models.PrecisionPlan) error {
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.Key()] = plan
	return nil
}

func (m *MemStore) GetPlan(ctx context.Context, farmID, fieldID, season string) (*models.PrecisionPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[models.PrecisionPlan{FarmID: farmID, FieldID: fieldID, Season: season}.Key()]
	if !ok {
		return nil, errkind.New(errkind.NotFound, fieldID, nil)
	}
	return &p, nil
}

func (m *MemStore) GetAnalysisTrend(ctx context.Context, fieldID string, limit int) ([]models.AnalysisResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AnalysisResult
	for _, a := range m.analyses {
		if a.FieldID == fieldID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AnalysisDate < out[j].AnalysisDate })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
