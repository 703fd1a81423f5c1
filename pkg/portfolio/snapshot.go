package portfolio

import (
	"sync/atomic"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

// SnapshotStore holds the latest published portfolio summary. Readers always
// see either a complete snapshot or none; a failed refresh never replaces the
// last good one.
type SnapshotStore struct {
	current atomic.Pointer[models.PortfolioSummary]
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Publish swaps in a new snapshot atomically.
func (s *SnapshotStore) Publish(summary *models.PortfolioSummary) {
	s.current.Store(summary)
}

// Current returns the latest snapshot, or nil before the first publish.
func (s *SnapshotStore) Current() *models.PortfolioSummary {
	return s.current.Load()
}
