package extractor

import (
	"time"

	"gorm.io/datatypes"
)

// ExtractRow is one raw row of a per-source extract batch, kept verbatim as
// JSON until reduction. A batch for a source replaces every prior row of that
// source.
type ExtractRow struct {
	ID        string            `json:"id" gorm:"primaryKey;column:id"`
	StudyID   string            `json:"study_id" gorm:"column:study_id;index"`
	Source    string            `json:"source" gorm:"column:source;index"`
	Payload   datatypes.JSONMap `json:"payload" gorm:"column:payload"`
	BatchID   string            `json:"batch_id" gorm:"column:batch_id"`
	CreatedAt time.Time         `json:"created_at" gorm:"column:created_at"`
}

func (ExtractRow) TableName() string {
	return "source_extracts"
}

// BatchRequest is the wire shape of one incoming extract batch.
type BatchRequest struct {
	Rows []RowPayload `json:"rows"`
}

// RowPayload is a loosely typed extract row. The reducer pulls the keys it
// knows; unknown keys ride along into storage untouched.
type RowPayload map[string]interface{}

// BatchReceipt acknowledges an accepted batch.
type BatchReceipt struct {
	BatchID    string    `json:"batch_id"`
	Source     string    `json:"source"`
	RowCount   int       `json:"row_count"`
	StudyCount int       `json:"study_count"`
	ReceivedAt time.Time `json:"received_at"`
}
