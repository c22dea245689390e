package model

import "time"

// Document MySQL model for the documents table. Only the processing
// status columns are owned by this subsystem, the rest of the row
// belongs to the ingestion pipeline.
type Document struct {
	ID               string    `gorm:"column:id;type:varchar(255);primaryKey" json:"id"`
	ProcessingStatus string    `gorm:"column:processing_status;type:varchar(32);index:idx_processing_status" json:"processing_status"`
	UpdatedAt        time.Time `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
}

// TableName specifies the table name for Document
func (Document) TableName() string {
	return "documents"
}
