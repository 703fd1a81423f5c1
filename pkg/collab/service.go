package collab

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/kafka"
	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/clinsight-ai/insight/pkg/observability/metrics"
	"github.com/clinsight-ai/insight/pkg/portfolio"
	"github.com/google/uuid"
)

var (
	ErrEmptyComment = errors.New("comment body is required")
	ErrUnknownRole  = errors.New("unknown team role")
)

var mentionPattern = regexp.MustCompile(`@([a-z]+)`)

// Service raises alerts from published snapshots and manages the
// comment and notification inboxes around them.
type Service struct {
	repo     *Repository
	producer *kafka.Producer
}

func NewService(repo *Repository, producer *kafka.Producer) *Service {
	return &Service{repo: repo, producer: producer}
}

// ProcessSnapshot evaluates the alert rules against a freshly published
// snapshot. A study+rule pair with an alert still open is not raised again.
func (s *Service) ProcessSnapshot(ctx context.Context, summary *models.PortfolioSummary) error {
	candidates := EvaluateAlerts(summary)
	if len(candidates) == 0 {
		return nil
	}

	open, err := s.repo.OpenAlertKeys(ctx)
	if err != nil {
		return fmt.Errorf("load open alerts: %w", err)
	}
	fresh := FilterNew(candidates, open)
	if len(fresh) == 0 {
		return nil
	}

	if err := s.repo.CreateAlerts(ctx, fresh); err != nil {
		return fmt.Errorf("persist alerts: %w", err)
	}

	notifications := make([]models.Notification, 0, len(fresh))
	for _, alert := range fresh {
		notifications = append(notifications, models.Notification{
			ID:        uuid.New(),
			Role:      notifyRole(alert.Rule),
			Kind:      "alert",
			Message:   alert.Message,
			RefID:     alert.ID.String(),
			CreatedAt: alert.CreatedAt,
		})
	}
	if err := s.repo.CreateNotifications(ctx, notifications); err != nil {
		logger.Log.WithError(err).Warn("Failed to persist alert notifications")
	}

	if s.producer != nil {
		for _, alert := range fresh {
			_ = s.producer.PublishEvent(ctx, "study.alert", "insight-service", map[string]interface{}{
				"alert_id": alert.ID.String(),
				"study_id": alert.StudyID,
				"rule":     alert.Rule,
				"severity": alert.Severity,
			})
		}
	}

	metrics.AddAlerts(len(fresh))
	logger.Log.WithFields(map[string]interface{}{
		"alerts":  len(fresh),
		"studies": summary.StudyCount,
	}).Info("Raised study alerts")
	return nil
}

// AlertHook runs alert evaluation after every snapshot publish.
func (s *Service) AlertHook() portfolio.PublishHook {
	return func(ctx context.Context, summary *models.PortfolioSummary) {
		if err := s.ProcessSnapshot(ctx, summary); err != nil {
			logger.Log.WithError(err).Error("Alert evaluation failed")
		}
	}
}

func (s *Service) Alerts(ctx context.Context, includeAcked bool, limit int) ([]models.Alert, error) {
	return s.repo.ListAlerts(ctx, includeAcked, limit)
}

func (s *Service) Acknowledge(ctx context.Context, id uuid.UUID, actor string) (*models.Alert, error) {
	return s.repo.AckAlert(ctx, id, actor)
}

// AddComment stores a comment and notifies every role mentioned in it.
func (s *Service) AddComment(ctx context.Context, studyID, author, role, body string) (*models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyComment
	}
	if role != "" && !ValidRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	comment := &models.Comment{
		ID:        uuid.New(),
		StudyID:   studyID,
		Author:    author,
		Role:      role,
		Body:      body,
		Mentions:  ExtractMentions(body),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, err
	}

	if len(comment.Mentions) > 0 {
		notifications := make([]models.Notification, 0, len(comment.Mentions))
		for _, mention := range comment.Mentions {
			notifications = append(notifications, models.Notification{
				ID:        uuid.New(),
				Role:      mention,
				Kind:      "mention",
				Message:   fmt.Sprintf("%s mentioned you on %s", author, studyID),
				RefID:     comment.ID.String(),
				CreatedAt: comment.CreatedAt,
			})
		}
		if err := s.repo.CreateNotifications(ctx, notifications); err != nil {
			logger.Log.WithError(err).Warn("Failed to persist mention notifications")
		}
	}
	return comment, nil
}

func (s *Service) Comments(ctx context.Context, studyID string, limit int) ([]models.Comment, error) {
	return s.repo.ListComments(ctx, studyID, limit)
}

func (s *Service) Notifications(ctx context.Context, role string, unreadOnly bool, limit int) ([]models.Notification, error) {
	return s.repo.ListNotifications(ctx, role, unreadOnly, limit)
}

func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkNotificationRead(ctx, id)
}

// ExtractMentions returns the catalog roles referenced with an @ in body,
// in order of first appearance. Unknown roles are dropped.
func ExtractMentions(body string) []string {
	matches := mentionPattern.FindAllStringSubmatch(strings.ToLower(body), -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var mentions []string
	for _, match := range matches {
		role := match[1]
		if !ValidRole(role) {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		mentions = append(mentions, role)
	}
	return mentions
}
