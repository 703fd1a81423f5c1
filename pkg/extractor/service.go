package extractor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/kafka"
	"github.com/clinsight-ai/insight/pkg/common/logger"
	"github.com/clinsight-ai/insight/pkg/common/models"
	"github.com/clinsight-ai/insight/pkg/observability/metrics"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Service accepts per-source extract batches and turns the stored rows into
// scoring inputs. The producer is optional; without it batches are stored
// silently.
type Service struct {
	validator *Validator
	repo      *Repository
	producer  *kafka.Producer
}

func NewService(validator *Validator, repo *Repository, producer *kafka.Producer) *Service {
	return &Service{
		validator: validator,
		repo:      repo,
		producer:  producer,
	}
}

// IngestBatch validates and stores one source batch, replacing the previous
// batch for that source.
func (s *Service) IngestBatch(ctx context.Context, source string, req BatchRequest) (*BatchReceipt, error) {
	source = strings.TrimSpace(strings.ToLower(source))
	if err := s.validator.Validate(source, req); err != nil {
		return nil, err
	}

	batchID := uuid.New().String()
	rows := make([]ExtractRow, 0, len(req.Rows))
	studyIDs := make(map[string]struct{})
	for _, payload := range req.Rows {
		studyID := getString(payload["study_id"])
		studyIDs[studyID] = struct{}{}
		rows = append(rows, ExtractRow{
			ID:      uuid.New().String(),
			StudyID: studyID,
			Source:  source,
			Payload: datatypes.JSONMap(payload),
			BatchID: batchID,
		})
	}

	if err := s.repo.ReplaceBatch(ctx, source, rows); err != nil {
		return nil, fmt.Errorf("storing extract batch: %w", err)
	}
	metrics.IncExtractBatch()

	receipt := &BatchReceipt{
		BatchID:    batchID,
		Source:     source,
		RowCount:   len(rows),
		StudyCount: len(studyIDs),
		ReceivedAt: time.Now().UTC(),
	}

	if s.producer != nil {
		err := s.producer.PublishEvent(ctx, "extract.received", source, map[string]interface{}{
			"batch_id":    batchID,
			"source":      source,
			"row_count":   receipt.RowCount,
			"study_count": receipt.StudyCount,
		})
		if err != nil {
			logger.Log.WithError(err).Warn("failed to publish extract.received event")
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"batch_id": batchID,
		"source":   source,
		"rows":     receipt.RowCount,
		"studies":  receipt.StudyCount,
	}).Info("Extract batch stored")

	return receipt, nil
}

// BuildInputs reduces every stored extract row into per-study scoring inputs.
func (s *Service) BuildInputs(ctx context.Context) ([]models.StudyInput, error) {
	rows, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading extract rows: %w", err)
	}
	return Reduce(rows), nil
}

// SourceCounts exposes per-source row counts for the ingest status endpoint.
func (s *Service) SourceCounts(ctx context.Context) (map[string]int64, error) {
	return s.repo.CountBySource(ctx)
}
