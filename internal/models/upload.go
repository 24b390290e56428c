package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusSucceeded  UploadStatus = "succeeded"
	UploadStatusFailed     UploadStatus = "failed"
)

func (s UploadStatus) Terminal() bool {
	return s == UploadStatusSucceeded || s == UploadStatusFailed
}

// Upload is both the status record shown to users and the queued job the
// worker claims. Options holds the serialised ingest request.
type Upload struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkspaceID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Principal     string         `gorm:"type:text" json:"principal,omitempty"`
	DataType      string         `gorm:"type:text;not null" json:"data_type"`
	TargetName    string         `gorm:"type:text;not null" json:"target_name"`
	BlobRef       string         `gorm:"type:text;not null" json:"blob_ref"`
	Options       datatypes.JSON `gorm:"type:jsonb" json:"options,omitempty"`
	Status        UploadStatus   `gorm:"type:text;not null;default:pending;index" json:"status"`
	ErrorMessages datatypes.JSON `gorm:"type:jsonb" json:"error_messages,omitempty"`
	Issues        datatypes.JSON `gorm:"type:jsonb" json:"issues,omitempty"`
	AttemptCount  int            `gorm:"not null;default:0" json:"attempt_count"`
	StartedAt     *time.Time     `gorm:"type:timestamptz" json:"started_at,omitempty"`
	CompletedAt   *time.Time     `gorm:"type:timestamptz" json:"completed_at,omitempty"`
	CreatedAt     time.Time      `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Upload) TableName() string {
	return "uploads"
}

func (u *Upload) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = UploadStatusPending
	}
	return
}
