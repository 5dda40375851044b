package entity

import (
	"encoding/json"
	"time"
)

// EffectivenessRecord is one evaluation round at stage 6. Records are
// append-only per (nc_id, nc_revision): a reopen creates a fresh record for
// the new revision instead of mutating prior evidence.
type EffectivenessRecord struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	NCID      string `json:"nc_id" gorm:"size:32;index;not null"`
	CompanyID string `json:"company_id" gorm:"size:32;index;not null"`

	// NCRevision is the reopen cycle of the NC this record belongs to.
	// RevisionNumber is the record's own round counter, bumped on each
	// postponement. The two move independently.
	NCRevision     int `json:"nc_revision" gorm:"default:0"`
	RevisionNumber int `json:"revision_number" gorm:"default:0"`

	// nil while the decision is pending or postponed
	IsEffective *bool  `json:"is_effective"`
	Evidence    string `json:"evidence" gorm:"type:text"`

	// Evidence attachment object paths (MinIO), JSON array
	EvidenceFiles json.RawMessage `json:"evidence_files" gorm:"type:jsonb"`

	RequiresRiskUpdate bool   `json:"requires_risk_update"`
	RiskUpdateNotes    string `json:"risk_update_notes" gorm:"type:text"`
	RequiresSgqChange  bool   `json:"requires_sgq_change"`
	SgqChangeNotes     string `json:"sgq_change_notes" gorm:"type:text"`

	// Postponement
	PostponedTo            *time.Time `json:"postponed_to"`
	PostponedReason        string     `json:"postponed_reason" gorm:"type:text"`
	PostponedResponsibleID *string    `json:"postponed_responsible_id" gorm:"size:32"`

	EvaluatedBy *string    `json:"evaluated_by" gorm:"size:32"`
	EvaluatedAt *time.Time `json:"evaluated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (EffectivenessRecord) TableName() string {
	return "qms_effectiveness_records"
}

// Pending reports whether the record still awaits a decision.
func (r *EffectivenessRecord) Pending() bool {
	return r.IsEffective == nil
}
