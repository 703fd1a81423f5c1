package collab

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

var (
	ErrAlertNotFound        = errors.New("alert not found")
	ErrNotificationNotFound = errors.New("notification not found")
)

type alertModel struct {
	ID           uuid.UUID  `gorm:"primaryKey;column:id"`
	StudyID      string     `gorm:"column:study_id;index"`
	Rule         string     `gorm:"column:rule"`
	Severity     string     `gorm:"column:severity"`
	Message      string     `gorm:"column:message"`
	Acknowledged bool       `gorm:"column:acknowledged;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	AckedAt      *time.Time `gorm:"column:acked_at"`
	AckedBy      string     `gorm:"column:acked_by"`
}

func (alertModel) TableName() string {
	return "alerts"
}

type commentModel struct {
	ID        uuid.UUID      `gorm:"primaryKey;column:id"`
	StudyID   string         `gorm:"column:study_id;index"`
	Author    string         `gorm:"column:author"`
	Role      string         `gorm:"column:role"`
	Body      string         `gorm:"column:body"`
	Mentions  datatypes.JSON `gorm:"column:mentions"`
	CreatedAt time.Time      `gorm:"column:created_at"`
}

func (commentModel) TableName() string {
	return "comments"
}

type notificationModel struct {
	ID        uuid.UUID `gorm:"primaryKey;column:id"`
	Role      string    `gorm:"column:role;index"`
	Kind      string    `gorm:"column:kind"`
	Message   string    `gorm:"column:message"`
	RefID     string    `gorm:"column:ref_id"`
	Read      bool      `gorm:"column:read;index"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (notificationModel) TableName() string {
	return "notifications"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&alertModel{}, &commentModel{}, &notificationModel{})
}

func (r *Repository) CreateAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	rows := make([]alertModel, 0, len(alerts))
	for _, alert := range alerts {
		rows = append(rows, alertModel{
			ID:        alert.ID,
			StudyID:   alert.StudyID,
			Rule:      alert.Rule,
			Severity:  alert.Severity,
			Message:   alert.Message,
			CreatedAt: alert.CreatedAt,
		})
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 100).Error
}

// OpenAlertKeys returns the study+rule pairs with an unacknowledged alert.
func (r *Repository) OpenAlertKeys(ctx context.Context) (map[string]struct{}, error) {
	var rows []struct {
		StudyID string
		Rule    string
	}
	err := r.db.WithContext(ctx).Model(&alertModel{}).
		Select("study_id", "rule").
		Where("acknowledged = ?", false).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		keys[alertKey(row.StudyID, row.Rule)] = struct{}{}
	}
	return keys, nil
}

func (r *Repository) ListAlerts(ctx context.Context, includeAcked bool, limit int) ([]models.Alert, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(clampLimit(limit))
	if !includeAcked {
		query = query.Where("acknowledged = ?", false)
	}
	var rows []alertModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	alerts := make([]models.Alert, 0, len(rows))
	for i := range rows {
		alerts = append(alerts, alertToDomain(&rows[i]))
	}
	return alerts, nil
}

func (r *Repository) AckAlert(ctx context.Context, id uuid.UUID, actor string) (*models.Alert, error) {
	var row alertModel
	result := r.db.WithContext(ctx).First(&row, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}

	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(&alertModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"acknowledged": true,
		"acked_at":     now,
		"acked_by":     actor,
	}).Error
	if err != nil {
		return nil, err
	}

	row.Acknowledged = true
	row.AckedAt = &now
	row.AckedBy = actor
	alert := alertToDomain(&row)
	return &alert, nil
}

func (r *Repository) CreateComment(ctx context.Context, comment *models.Comment) error {
	mentions, err := json.Marshal(comment.Mentions)
	if err != nil {
		return err
	}
	row := commentModel{
		ID:        comment.ID,
		StudyID:   comment.StudyID,
		Author:    comment.Author,
		Role:      comment.Role,
		Body:      comment.Body,
		Mentions:  datatypes.JSON(mentions),
		CreatedAt: comment.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *Repository) ListComments(ctx context.Context, studyID string, limit int) ([]models.Comment, error) {
	var rows []commentModel
	err := r.db.WithContext(ctx).
		Where("study_id = ?", studyID).
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	comments := make([]models.Comment, 0, len(rows))
	for i := range rows {
		comment := models.Comment{
			ID:        rows[i].ID,
			StudyID:   rows[i].StudyID,
			Author:    rows[i].Author,
			Role:      rows[i].Role,
			Body:      rows[i].Body,
			CreatedAt: rows[i].CreatedAt,
		}
		if len(rows[i].Mentions) > 0 {
			if err := json.Unmarshal(rows[i].Mentions, &comment.Mentions); err != nil {
				return nil, err
			}
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

func (r *Repository) CreateNotifications(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	rows := make([]notificationModel, 0, len(notifications))
	for _, n := range notifications {
		rows = append(rows, notificationModel{
			ID:        n.ID,
			Role:      n.Role,
			Kind:      n.Kind,
			Message:   n.Message,
			RefID:     n.RefID,
			CreatedAt: n.CreatedAt,
		})
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 100).Error
}

func (r *Repository) ListNotifications(ctx context.Context, role string, unreadOnly bool, limit int) ([]models.Notification, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(clampLimit(limit))
	if role != "" {
		query = query.Where("role = ?", role)
	}
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	var rows []notificationModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	notifications := make([]models.Notification, 0, len(rows))
	for _, row := range rows {
		notifications = append(notifications, models.Notification{
			ID:        row.ID,
			Role:      row.Role,
			Kind:      row.Kind,
			Message:   row.Message,
			RefID:     row.RefID,
			Read:      row.Read,
			CreatedAt: row.CreatedAt,
		})
	}
	return notifications, nil
}

func (r *Repository) MarkNotificationRead(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&notificationModel{}).
		Where("id = ?", id).
		Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func alertToDomain(row *alertModel) models.Alert {
	return models.Alert{
		ID:           row.ID,
		StudyID:      row.StudyID,
		Rule:         row.Rule,
		Severity:     row.Severity,
		Message:      row.Message,
		Acknowledged: row.Acknowledged,
		CreatedAt:    row.CreatedAt,
		AckedAt:      row.AckedAt,
		AckedBy:      row.AckedBy,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return 50
	}
	return limit
}
