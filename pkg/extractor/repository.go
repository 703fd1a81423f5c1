package extractor

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&ExtractRow{})
}

// ReplaceBatch swaps in a full extract for one source: every prior row of
// that source is dropped in the same transaction the new rows land in.
func (r *Repository) ReplaceBatch(ctx context.Context, source string, rows []ExtractRow) error {
	now := time.Now().UTC()
	for i := range rows {
		rows[i].CreatedAt = now
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source = ?", source).Delete(&ExtractRow{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(rows, 500).Error
	})
}

// ListAll returns every stored extract row, grouped by study for the reducer.
func (r *Repository) ListAll(ctx context.Context) ([]ExtractRow, error) {
	var rows []ExtractRow
	err := r.db.WithContext(ctx).
		Order("study_id asc, source asc, created_at asc").
		Find(&rows).Error
	return rows, err
}

type sourceCount struct {
	Source string `gorm:"column:source"`
	Count  int64  `gorm:"column:count"`
}

// CountBySource reports how many rows each source currently holds.
func (r *Repository) CountBySource(ctx context.Context) (map[string]int64, error) {
	var counts []sourceCount
	err := r.db.WithContext(ctx).Model(&ExtractRow{}).
		Select("source, count(*) as count").
		Group("source").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(counts))
	for _, c := range counts {
		out[c.Source] = c.Count
	}
	return out, nil
}
