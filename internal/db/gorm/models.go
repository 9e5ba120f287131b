package gorm

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/Meta-project2/RAG-Complaint-2nd/pkg/models"
)

// District is a row of districts.
type District struct {
	Name string `gorm:"type:varchar(100);not null"`
	ID   int64  `gorm:"primaryKey"`
}

// TableName returns the table name for District.
func (District) TableName() string { return "districts" }

// Complaint is a row of complaints. Only the incident link columns are
// written by the worker.
type Complaint struct {
	CreatedAt         time.Time  `gorm:"not null"`
	IncidentID        *int64     `gorm:"index:idx_complaints_incident"`
	IncidentLinkedAt  *time.Time `gorm:"column:incident_linked_at"`
	IncidentLinkScore *float64   `gorm:"column:incident_link_score"`
	Status            string     `gorm:"type:varchar(20);not null;default:RECEIVED;index:idx_complaints_status"`
	ID                int64      `gorm:"primaryKey"`
}

// TableName returns the table name for Complaint.
func (Complaint) TableName() string { return "complaints" }

// ComplaintNormalization is a row of complaint_normalizations: the analyzed
// fingerprint of a complaint. The embedding column is created by migrations
// because its type depends on the dialect.
type ComplaintNormalization struct {
	CreatedAt    time.Time              `gorm:"not null"`
	DistrictID   *int64                 `gorm:"index:idx_normalizations_district"`
	TargetObject *string                `gorm:"type:varchar(255)"`
	Embedding    *pgvec.Vector          `gorm:"column:embedding;-:migration"`
	CoreRequest  string                 `gorm:"column:core_request;type:text"`
	Keywords     models.JSONStringArray `gorm:"column:keywords_jsonb;not null;default:'[]'"`
	ID           int64                  `gorm:"primaryKey"`
	ComplaintID  int64                  `gorm:"not null;index:idx_normalizations_complaint"`
	IsCurrent    bool                   `gorm:"not null;default:true"`
}

// TableName returns the table name for ComplaintNormalization.
func (ComplaintNormalization) TableName() string { return "complaint_normalizations" }

// Incident is a row of incidents.
type Incident struct {
	OpenedAt       time.Time  `gorm:"not null;index:idx_incidents_opened"`
	DistrictID     *int64     `gorm:"index:idx_incidents_district"`
	ClosedAt       *time.Time `gorm:"column:closed_at"`
	UUID           string     `gorm:"column:uuid;type:varchar(36);uniqueIndex:idx_incidents_uuid"`
	Title          string     `gorm:"type:varchar(200);not null"`
	Status         string     `gorm:"type:varchar(20);not null;default:OPEN;index:idx_incidents_status"`
	Keywords       string     `gorm:"type:text"`
	ID             int64      `gorm:"primaryKey"`
	ComplaintCount int        `gorm:"not null;default:0;check:chk_incidents_complaint_count,complaint_count >= 0"`
}

// TableName returns the table name for Incident.
func (Incident) TableName() string { return "incidents" }

// maxTitleRunes matches the width of incidents.title.
const maxTitleRunes = 200

// BeforeCreate fills the public id and defaults.
func (i *Incident) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == "" {
		i.UUID = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = string(models.IncidentOpen)
	}
	if i.OpenedAt.IsZero() {
		i.OpenedAt = tx.NowFunc()
	}
	if utf8.RuneCountInString(i.Title) > maxTitleRunes {
		i.Title = string([]rune(i.Title)[:maxTitleRunes])
	}
	return nil
}
