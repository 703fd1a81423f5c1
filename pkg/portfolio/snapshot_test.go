package portfolio

import (
	"testing"
	"time"

	"github.com/clinsight-ai/insight/pkg/common/models"
)

func TestSnapshotStoreEmpty(t *testing.T) {
	store := NewSnapshotStore()
	if store.Current() != nil {
		t.Fatal("expected nil before first publish")
	}
}

func TestSnapshotStoreSwaps(t *testing.T) {
	store := NewSnapshotStore()

	first := &models.PortfolioSummary{StudyCount: 1, GeneratedAt: time.Now().UTC()}
	store.Publish(first)
	if got := store.Current(); got != first {
		t.Fatal("expected first snapshot")
	}

	second := &models.PortfolioSummary{StudyCount: 2, GeneratedAt: time.Now().UTC()}
	store.Publish(second)
	if got := store.Current(); got != second {
		t.Fatal("expected second snapshot after swap")
	}
	if got := store.Current(); got.StudyCount != 2 {
		t.Errorf("expected study count 2, got %d", got.StudyCount)
	}
}
