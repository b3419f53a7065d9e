package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/solarsentry/space-weather-forecast/internal/domain"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

// ForecastRecord is one persisted forecast cycle. List-valued bundle fields
// are flattened into JSON text columns.
type ForecastRecord struct {
	ID                  string    `json:"id" gorm:"primaryKey"`
	GeneratedAt         time.Time `json:"generatedAt" gorm:"index"`
	ValidUntil          time.Time `json:"validUntil"`
	Title               string    `json:"title"`
	ExecutiveSummary    string    `json:"executiveSummary"`
	DetailedAnalysis    string    `json:"detailedAnalysis"`
	ConfidenceScore     float64   `json:"confidenceScore"`
	RiskLevel           string    `json:"riskLevel" gorm:"index"`
	RiskScore           float64   `json:"riskScore"`
	CMECount            int       `json:"cmeCount"`
	FlareCount          int       `json:"flareCount"`
	NarrativeSource     string    `json:"narrativeSource"`
	ImpactsJSON         string    `json:"-"`
	RiskAssessmentsJSON string    `json:"-"`
	EvidenceJSON        string    `json:"-"`
	RecommendationsJSON string    `json:"-"`
}

// Alert is one risk escalation event.
type Alert struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index"`
	ForecastID string    `json:"forecastId" gorm:"index"`
	Level      string    `json:"level"`
	Score      float64   `json:"score"`
	Message    string    `json:"message"`
}

// Filter narrows history queries. Zero values mean "no constraint"; Limit
// falls back to a bounded default.
type Filter struct {
	Limit    int
	MinScore float64
	Level    string
}

// Store persists forecast bundles and escalation alerts in sqlite.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger

	mu        sync.Mutex
	lastLevel domain.RiskLevel
	hasLast   bool
}

// Open connects to the sqlite database at path, migrates the schema, and
// seeds escalation state from the most recent record so alerts survive
// restarts.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&ForecastRecord{}, &Alert{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	store := &Store{db: db, logger: logger}

	var last ForecastRecord
	err = db.Order("generated_at desc").First(&last).Error
	switch {
	case err == nil:
		store.lastLevel = domain.RiskLevel(last.RiskLevel)
		store.hasLast = true
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("read last forecast record: %w", err)
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Name identifies the store in sink metrics and logs.
func (s *Store) Name() string { return "history" }

// Publish implements the export sink contract.
func (s *Store) Publish(ctx context.Context, bundle domain.ForecastBundle) error {
	return s.SaveBundle(ctx, bundle)
}

// SaveBundle persists one bundle and, when the risk level escalates into
// high or extreme territory, an alert row alongside it.
func (s *Store) SaveBundle(ctx context.Context, bundle domain.ForecastBundle) error {
	record, err := recordFromBundle(bundle)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("save forecast record: %w", err)
	}

	if s.escalated(bundle.RiskLevel) {
		alert := Alert{
			ForecastID: bundle.ID,
			Level:      string(bundle.RiskLevel),
			Score:      bundle.Risk.Score,
			Message:    fmt.Sprintf("Risk level escalated to %s (score %.1f)", bundle.RiskLevel, bundle.Risk.Score),
		}
		if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
			return fmt.Errorf("save alert: %w", err)
		}
		s.logger.Info("risk escalation alert",
			"level", bundle.RiskLevel, "score", bundle.Risk.Score, "forecast_id", bundle.ID)
	}

	s.lastLevel = bundle.RiskLevel
	s.hasLast = true
	return nil
}

// Recent returns persisted forecasts, newest first.
func (s *Store) Recent(ctx context.Context, filter Filter) ([]ForecastRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxQueryLimit {
		limit = defaultQueryLimit
	}

	q := s.db.WithContext(ctx).Order("generated_at desc").Limit(limit)
	if filter.MinScore > 0 {
		q = q.Where("risk_score >= ?", filter.MinScore)
	}
	if filter.Level != "" {
		q = q.Where("risk_level = ?", filter.Level)
	}

	var records []ForecastRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query forecast history: %w", err)
	}
	return records, nil
}

// RecentAlerts returns escalation alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 || limit > maxQueryLimit {
		limit = defaultQueryLimit
	}

	var alerts []Alert
	if err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	return alerts, nil
}

// escalated reports whether level crosses upward into the alerting band.
// Staying at the same level, or moving down, never alerts. Caller holds mu.
func (s *Store) escalated(level domain.RiskLevel) bool {
	if levelRank(level) < levelRank(domain.LevelHigh) {
		return false
	}
	if !s.hasLast {
		return true
	}
	return levelRank(level) > levelRank(s.lastLevel)
}

func levelRank(level domain.RiskLevel) int {
	switch level {
	case domain.LevelExtreme:
		return 4
	case domain.LevelHigh:
		return 3
	case domain.LevelModerate:
		return 2
	case domain.LevelLow:
		return 1
	default:
		return 0
	}
}

func recordFromBundle(bundle domain.ForecastBundle) (ForecastRecord, error) {
	impacts, err := json.Marshal(bundle.Impacts)
	if err != nil {
		return ForecastRecord{}, fmt.Errorf("marshal impacts: %w", err)
	}
	assessments, err := json.Marshal(bundle.RiskAssessments)
	if err != nil {
		return ForecastRecord{}, fmt.Errorf("marshal risk assessments: %w", err)
	}
	evidence, err := json.Marshal(bundle.EvidenceChain)
	if err != nil {
		return ForecastRecord{}, fmt.Errorf("marshal evidence chain: %w", err)
	}
	recommendations, err := json.Marshal(bundle.Recommendations)
	if err != nil {
		return ForecastRecord{}, fmt.Errorf("marshal recommendations: %w", err)
	}

	return ForecastRecord{
		ID:                  bundle.ID,
		GeneratedAt:         bundle.GeneratedAt,
		ValidUntil:          bundle.ValidUntil,
		Title:               bundle.Title,
		ExecutiveSummary:    bundle.ExecutiveSummary,
		DetailedAnalysis:    bundle.DetailedAnalysis,
		ConfidenceScore:     bundle.ConfidenceScore,
		RiskLevel:           string(bundle.RiskLevel),
		RiskScore:           bundle.Risk.Score,
		CMECount:            bundle.Summary.CME.Count,
		FlareCount:          bundle.Summary.Flare.Count,
		NarrativeSource:     bundle.NarrativeSource,
		ImpactsJSON:         string(impacts),
		RiskAssessmentsJSON: string(assessments),
		EvidenceJSON:        string(evidence),
		RecommendationsJSON: string(recommendations),
	}, nil
}
