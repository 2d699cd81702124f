package models

import (
	"context"
	"time"

	"github.com/proplens/recon_backend/utils"
)

type UploadStatus string

const (
	UploadStatusPending   UploadStatus = "PENDING"
	UploadStatusCompleted UploadStatus = "COMPLETED"
	UploadStatusFailed    UploadStatus = "FAILED"
)

// DocumentUpload is metadata written by the upstream upload/extraction
// pipeline. The alert data-presence gate consults it: a COMPLETED upload is
// one of the three accepted proofs that source data exists for a
// property/period.
type DocumentUpload struct {
	ID           int          `gorm:"primary_key" json:"id"`
	PropertyId   int          `gorm:"index:idx_upload_scope;not null" json:"property_id"`
	PeriodId     string       `gorm:"index:idx_upload_scope;size:7;not null" json:"period_id"`
	DocumentType DocumentType `gorm:"size:32;not null" json:"document_type"`
	ObjectKey    string       `gorm:"size:255" json:"object_key"`
	FileName     string       `gorm:"size:255" json:"file_name"`
	Status       UploadStatus `gorm:"size:16;not null;default:'PENDING';index" json:"status"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasCompletedUpload reports whether any completed document upload exists for
// the property/period.
func HasCompletedUpload(ctx context.Context, propertyId int, periodId string) (bool, error) {
	count, err := utils.ResourceCountWhere[DocumentUpload](ctx,
		"property_id = ? AND period_id = ? AND status = ?", propertyId, periodId, UploadStatusCompleted)
	return count > 0, err
}
