package insight

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrRunNotFound means no refresh run exists under the requested ID.
var ErrRunNotFound = errors.New("refresh run not found")

type summaryModel struct {
	StudyID        string         `gorm:"primaryKey;column:study_id"`
	StudyName      string         `gorm:"column:study_name"`
	DQIScore       float64        `gorm:"column:dqi_score"`
	DQILevel       string         `gorm:"column:dqi_level"`
	RiskRaw        float64        `gorm:"column:risk_raw"`
	RiskNormalized float64        `gorm:"column:risk_normalized"`
	RiskLevel      string         `gorm:"column:risk_level;index"`
	Document       datatypes.JSON `gorm:"column:document"`
	RefreshedAt    time.Time      `gorm:"column:refreshed_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (summaryModel) TableName() string { return "study_summaries" }

type runModel struct {
	ID            uuid.UUID  `gorm:"primaryKey;column:id"`
	Status        string     `gorm:"column:status"`
	StudyCount    int        `gorm:"column:study_count"`
	ExcludedCount int        `gorm:"column:excluded_count"`
	ErrorMessage  string     `gorm:"column:error_message"`
	RequestedBy   string     `gorm:"column:requested_by"`
	CreatedAt     time.Time  `gorm:"column:created_at"`
	StartedAt     *time.Time `gorm:"column:started_at"`
	CompletedAt   *time.Time `gorm:"column:completed_at"`
}

func (runModel) TableName() string { return "refresh_runs" }

// Repository persists computed study summaries for warm starts and the
// refresh run history.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&summaryModel{})
}

// ReplaceSummaries swaps the persisted study summaries for a snapshot's
// worth of new ones in a single transaction.
func (r *Repository) ReplaceSummaries(ctx context.Context, summaries []models.StudySummary) error {
	now := time.Now().UTC()
	rows := make([]summaryModel, 0, len(summaries))
	for _, s := range summaries {
		doc, err := json.Marshal(s)
		if err != nil {
			return err
		}
		rows = append(rows, summaryModel{
			StudyID:        s.StudyID,
			StudyName:      s.StudyName,
			DQIScore:       s.DQI.Score,
			DQILevel:       s.DQI.Level,
			RiskRaw:        s.Risk.RawScore,
			RiskNormalized: s.Risk.NormalizedScore,
			RiskLevel:      s.Risk.Level,
			Document:       datatypes.JSON(doc),
			RefreshedAt:    s.RefreshedAt,
			UpdatedAt:      now,
		})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&summaryModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}

// ListSummaries returns every persisted study summary, ordered by study ID.
func (r *Repository) ListSummaries(ctx context.Context) ([]models.StudySummary, error) {
	var rows []summaryModel
	if err := r.db.WithContext(ctx).Order("study_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}

	summaries := make([]models.StudySummary, 0, len(rows))
	for _, row := range rows {
		var summary models.StudySummary
		if err := json.Unmarshal(row.Document, &summary); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// RunRepository implements the refresher's run store on Postgres.
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&runModel{})
}

func (r *RunRepository) Create(ctx context.Context, run *models.RefreshRun) error {
	row := &runModel{
		ID:            run.ID,
		Status:        run.Status,
		StudyCount:    run.StudyCount,
		ExcludedCount: run.ExcludedCount,
		ErrorMessage:  run.ErrorMessage,
		RequestedBy:   run.RequestedBy,
		CreatedAt:     run.CreatedAt,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *RunRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates).Error
}

func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*models.RefreshRun, error) {
	var row runModel
	result := r.db.WithContext(ctx).First(&row, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	run := runToDomain(&row)
	return &run, nil
}

func (r *RunRepository) List(ctx context.Context, limit int) ([]models.RefreshRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var rows []runModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]models.RefreshRun, 0, len(rows))
	for i := range rows {
		runs = append(runs, runToDomain(&rows[i]))
	}
	return runs, nil
}

func runToDomain(row *runModel) models.RefreshRun {
	return models.RefreshRun{
		ID:            row.ID,
		Status:        row.Status,
		StudyCount:    row.StudyCount,
		ExcludedCount: row.ExcludedCount,
		ErrorMessage:  row.ErrorMessage,
		RequestedBy:   row.RequestedBy,
		CreatedAt:     row.CreatedAt,
		StartedAt:     row.StartedAt,
		CompletedAt:   row.CompletedAt,
	}
}
